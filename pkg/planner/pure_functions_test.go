package planner

import (
	"reflect"
	"testing"

	"github.com/yuya-takeyama/hash-backup/pkg/manifest"
)

func localManifest(records ...manifest.FileRecord) *manifest.LocalManifest {
	m := manifest.NewLocalManifest("/data")
	for _, rec := range records {
		m.Add(rec)
	}
	return m
}

func remoteManifest(pairs ...string) *manifest.RemoteManifest {
	m := manifest.NewRemoteManifest("/backups")
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Add(pairs[i], pairs[i+1])
	}
	return m
}

var (
	recA   = manifest.FileRecord{Digest: "h1", Path: "/data/a.txt", RelPath: "a.txt", Size: 1}
	recB   = manifest.FileRecord{Digest: "h2", Path: "/data/b.txt", RelPath: "b.txt", Size: 2}
	recC   = manifest.FileRecord{Digest: "h3", Path: "/data/sub/c.txt", RelPath: "sub/c.txt", Size: 3}
	recDup = manifest.FileRecord{Digest: "h1", Path: "/data/sub/a-copy.txt", RelPath: "sub/a-copy.txt", Size: 1}
)

func TestDiff(t *testing.T) {
	tests := []struct {
		name   string
		local  *manifest.LocalManifest
		remote *manifest.RemoteManifest
		want   BackupSet
	}{
		{
			name:   "empty remote returns every local digest",
			local:  localManifest(recA, recB),
			remote: remoteManifest(),
			want:   BackupSet{"h1", "h2"},
		},
		{
			name:   "nil remote behaves like empty",
			local:  localManifest(recA),
			remote: nil,
			want:   BackupSet{"h1"},
		},
		{
			name:   "digests present remotely are excluded",
			local:  localManifest(recA, recB, recC),
			remote: remoteManifest("h2", "/backups/b.txt"),
			want:   BackupSet{"h1", "h3"},
		},
		{
			name:   "remote location does not matter",
			local:  localManifest(recA),
			remote: remoteManifest("h1", "/backups/elsewhere/renamed.txt"),
			want:   BackupSet{},
		},
		{
			name:   "duplicate content collapses",
			local:  localManifest(recA, recDup),
			remote: remoteManifest(),
			want:   BackupSet{"h1"},
		},
		{
			name:   "nil local",
			local:  nil,
			remote: remoteManifest("h1", "/backups/a.txt"),
			want:   BackupSet{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Diff(tt.local, tt.remote)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Diff() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDiffIsOrderIndependent(t *testing.T) {
	forward := localManifest(recA, recB, recC)
	backward := localManifest(recC, recB, recA)
	remote1 := remoteManifest("h2", "/backups/b.txt", "h9", "/backups/x")
	remote2 := remoteManifest("h9", "/backups/x", "h2", "/backups/b.txt")

	want := Diff(forward, remote1)
	for i := 0; i < 20; i++ {
		if got := Diff(backward, remote2); !reflect.DeepEqual(got, want) {
			t.Fatalf("Diff() = %v, want %v", got, want)
		}
	}
}

func TestGeneratePlanByDigest(t *testing.T) {
	tests := []struct {
		name        string
		local       *manifest.LocalManifest
		remote      *manifest.RemoteManifest
		wantItems   []Item
		wantBulk    bool
		wantSkipped int
	}{
		{
			name:   "empty remote is a bulk plan",
			local:  localManifest(recA, recB),
			remote: remoteManifest(),
			wantItems: []Item{
				{Action: ActionCopy, Digest: "h1", LocalPath: "/data/a.txt", RelPath: "a.txt", RemoteDir: "/backups", RemotePath: "/backups/a.txt", Size: 1, Reason: "digest not in remote"},
				{Action: ActionCopy, Digest: "h2", LocalPath: "/data/b.txt", RelPath: "b.txt", RemoteDir: "/backups", RemotePath: "/backups/b.txt", Size: 2, Reason: "digest not in remote"},
			},
			wantBulk: true,
		},
		{
			name:   "nested file copies into its mirrored directory",
			local:  localManifest(recA, recC),
			remote: remoteManifest("h1", "/backups/a.txt"),
			wantItems: []Item{
				{Action: ActionCopy, Digest: "h3", LocalPath: "/data/sub/c.txt", RelPath: "sub/c.txt", RemoteDir: "/backups/sub", RemotePath: "/backups/sub/c.txt", Size: 3, Reason: "digest not in remote"},
			},
			wantSkipped: 1,
		},
		{
			name:        "everything present",
			local:       localManifest(recA, recB, recDup),
			remote:      remoteManifest("h1", "/backups/a.txt", "h2", "/backups/b.txt"),
			wantItems:   []Item{},
			wantSkipped: 3,
		},
		{
			name:   "duplicate content is transferred once",
			local:  localManifest(recA, recDup),
			remote: remoteManifest("h9", "/backups/other"),
			wantItems: []Item{
				{Action: ActionCopy, Digest: "h1", LocalPath: "/data/sub/a-copy.txt", RelPath: "sub/a-copy.txt", RemoteDir: "/backups/sub", RemotePath: "/backups/sub/a-copy.txt", Size: 1, Reason: "digest not in remote"},
			},
		},
		{
			name:      "empty local tree against empty remote",
			local:     localManifest(),
			remote:    remoteManifest(),
			wantItems: []Item{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := GeneratePlan(tt.local, tt.remote, Options{Policy: DedupDigest, RemoteBase: "/backups"})
			if !reflect.DeepEqual(plan.Items, tt.wantItems) {
				t.Errorf("Items = %+v, want %+v", plan.Items, tt.wantItems)
			}
			if plan.Bulk != tt.wantBulk {
				t.Errorf("Bulk = %v, want %v", plan.Bulk, tt.wantBulk)
			}
			if plan.Skipped != tt.wantSkipped {
				t.Errorf("Skipped = %d, want %d", plan.Skipped, tt.wantSkipped)
			}
		})
	}
}

func TestGeneratePlanByPath(t *testing.T) {
	local := localManifest(recA, recB, recDup)
	remote := remoteManifest(
		"h1", "/backups/a.txt",
		"h7", "/backups/b.txt",
	)

	plan := GeneratePlan(local, remote, Options{Policy: DedupPath, RemoteBase: "/backups"})

	want := []Item{
		{Action: ActionCopy, Digest: "h2", LocalPath: "/data/b.txt", RelPath: "b.txt", RemoteDir: "/backups", RemotePath: "/backups/b.txt", Size: 2, Reason: "content differs"},
		{Action: ActionCopy, Digest: "h1", LocalPath: "/data/sub/a-copy.txt", RelPath: "sub/a-copy.txt", RemoteDir: "/backups/sub", RemotePath: "/backups/sub/a-copy.txt", Size: 1, Reason: "missing at remote path"},
	}
	if !reflect.DeepEqual(plan.Items, want) {
		t.Errorf("Items = %+v, want %+v", plan.Items, want)
	}
	if !reflect.DeepEqual(plan.BackupSet, BackupSet{"h1", "h2"}) {
		t.Errorf("BackupSet = %v", plan.BackupSet)
	}
	if plan.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", plan.Skipped)
	}
	if plan.Bulk {
		t.Error("Bulk should be false when the remote has entries")
	}
}

func TestGeneratePlanByPathIgnoresDigestCase(t *testing.T) {
	local := localManifest(manifest.FileRecord{Digest: "5d41402abc4b2a76b9719d911017c592", Path: "/data/a.txt", RelPath: "a.txt", Size: 5})
	remote := remoteManifest("5D41402ABC4B2A76B9719D911017C592", "/backups/a.txt")

	plan := GeneratePlan(local, remote, Options{Policy: DedupPath, RemoteBase: "/backups"})
	if len(plan.Items) != 0 {
		t.Errorf("Items = %+v, want none", plan.Items)
	}
	if plan.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", plan.Skipped)
	}
}

func TestParseDedupPolicy(t *testing.T) {
	tests := []struct {
		input   string
		want    DedupPolicy
		wantErr bool
	}{
		{"", DedupDigest, false},
		{"digest", DedupDigest, false},
		{" PATH ", DedupPath, false},
		{"inode", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDedupPolicy(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseDedupPolicy(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseDedupPolicy(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
