package logger

import (
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncLoggerLevels(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	l := New(base)

	boom := errors.New("boom")

	l.CycleStart(3)
	l.Hashed("/data/a.txt", "abc")
	l.HashFailed("/data/b.txt", boom)
	l.DirectoryEnsured("backups/x", nil)
	l.DirectoryEnsured("backups/y", boom)
	l.Transfer("/data/a.txt", "backups", false)
	l.TransferFailed("/data/c.txt", "backups", boom)
	l.RemoteUnavailable("backups", boom)
	l.CycleComplete(3, time.Second, map[string]interface{}{"transferred": 1})

	entries := hook.AllEntries()
	require.Len(t, entries, 9)

	wantLevels := []logrus.Level{
		logrus.InfoLevel,
		logrus.DebugLevel,
		logrus.WarnLevel,
		logrus.DebugLevel,
		logrus.ErrorLevel,
		logrus.InfoLevel,
		logrus.ErrorLevel,
		logrus.ErrorLevel,
		logrus.InfoLevel,
	}
	for i, e := range entries {
		assert.Equal(t, wantLevels[i], e.Level, "entry %d: %s", i, e.Message)
	}

	assert.Equal(t, 3, entries[0].Data["cycle"])
	assert.Equal(t, "abc", entries[1].Data["digest"])
	assert.Equal(t, boom, entries[2].Data[logrus.ErrorKey])
	assert.Equal(t, 1, entries[8].Data["transferred"])
}

func TestTransferDryRun(t *testing.T) {
	base, hook := test.NewNullLogger()
	New(base).Transfer("/data/a.txt", "backups", true)

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "(dryrun) copy", hook.LastEntry().Message)
}

func TestNullLoggerImplementsLogger(t *testing.T) {
	var l Logger = NullLogger{}
	l.Error("copy", "/x", errors.New("ignored"))
}
