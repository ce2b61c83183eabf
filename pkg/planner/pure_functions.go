package planner

import (
	"path"
	"sort"

	"github.com/yuya-takeyama/hash-backup/internal/checksum"
	"github.com/yuya-takeyama/hash-backup/internal/walker"
	"github.com/yuya-takeyama/hash-backup/pkg/manifest"
)

// Diff returns the digests present locally but absent remotely, sorted. It
// depends only on the two key sets.
func Diff(local *manifest.LocalManifest, remote *manifest.RemoteManifest) BackupSet {
	set := BackupSet{}
	if local == nil {
		return set
	}
	for digest := range local.ByDigest {
		if remote.IsEmpty() || !remote.Has(digest) {
			set = append(set, digest)
		}
	}
	sort.Strings(set)
	return set
}

// GeneratePlan turns the manifests into copy items according to opts.Policy.
func GeneratePlan(local *manifest.LocalManifest, remote *manifest.RemoteManifest, opts Options) Plan {
	if remote == nil {
		remote = manifest.NewRemoteManifest(opts.RemoteBase)
	}

	var plan Plan
	switch opts.Policy {
	case DedupPath:
		plan = planByPath(local, remote, opts.RemoteBase)
	default:
		plan = planByDigest(local, remote, opts.RemoteBase)
	}

	plan.Bulk = remote.IsEmpty() && len(plan.Items) > 0
	sort.Slice(plan.Items, func(i, j int) bool {
		return plan.Items[i].RemotePath < plan.Items[j].RemotePath
	})
	return plan
}

func planByDigest(local *manifest.LocalManifest, remote *manifest.RemoteManifest, base string) Plan {
	set := Diff(local, remote)
	plan := Plan{BackupSet: set, Items: []Item{}}

	for _, digest := range set {
		plan.Items = append(plan.Items, copyItem(local.ByDigest[digest], base, "digest not in remote"))
	}
	if local != nil {
		for _, rec := range local.Files {
			if remote.Has(rec.Digest) {
				plan.Skipped++
			}
		}
	}
	return plan
}

func planByPath(local *manifest.LocalManifest, remote *manifest.RemoteManifest, base string) Plan {
	plan := Plan{BackupSet: BackupSet{}, Items: []Item{}}
	if local == nil {
		return plan
	}

	digests := make(map[string]struct{})
	for _, rec := range local.Files {
		remotePath := walker.RemotePath(base, rec.RelPath)
		existing, ok := remote.Entries[remotePath]
		switch {
		case ok && checksum.CompareChecksums(existing, rec.Digest):
			plan.Skipped++
			continue
		case ok:
			plan.Items = append(plan.Items, copyItem(rec, base, "content differs"))
		default:
			plan.Items = append(plan.Items, copyItem(rec, base, "missing at remote path"))
		}
		digests[rec.Digest] = struct{}{}
	}

	for digest := range digests {
		plan.BackupSet = append(plan.BackupSet, digest)
	}
	sort.Strings(plan.BackupSet)
	return plan
}

func copyItem(rec manifest.FileRecord, base, reason string) Item {
	return Item{
		Action:     ActionCopy,
		Digest:     rec.Digest,
		LocalPath:  rec.Path,
		RelPath:    rec.RelPath,
		RemoteDir:  walker.RemotePath(base, path.Dir(rec.RelPath)),
		RemotePath: walker.RemotePath(base, rec.RelPath),
		Size:       rec.Size,
		Reason:     reason,
	}
}
