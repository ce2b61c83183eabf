package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Logger receives the significant events of a backup cycle.
type Logger interface {
	CycleStart(cycle int)
	CycleComplete(cycle int, duration time.Duration, summary map[string]interface{})
	Hashed(path, digest string)
	HashFailed(path string, err error)
	DirectoryEnsured(remotePath string, err error)
	Transfer(localPath, remotePath string, dryRun bool)
	TransferFailed(localPath, remotePath string, err error)
	RemoteUnavailable(remotePath string, err error)
	Info(message string)
	Warn(message string)
	Error(operation, path string, err error)
	Debug(message string)
}

// SyncLogger writes events as structured logrus entries.
type SyncLogger struct {
	Log logrus.FieldLogger
}

// New returns a SyncLogger on top of l.
func New(l logrus.FieldLogger) *SyncLogger {
	return &SyncLogger{Log: l}
}

func (s *SyncLogger) CycleStart(cycle int) {
	s.Log.WithField("cycle", cycle).Info("Cycle started")
}

func (s *SyncLogger) CycleComplete(cycle int, duration time.Duration, summary map[string]interface{}) {
	s.Log.WithField("cycle", cycle).
		WithField("duration", duration.Round(time.Millisecond)).
		WithFields(logrus.Fields(summary)).
		Info("Cycle complete")
}

func (s *SyncLogger) Hashed(path, digest string) {
	s.Log.WithFields(logrus.Fields{"path": path, "digest": digest}).Debug("Hash computed")
}

func (s *SyncLogger) HashFailed(path string, err error) {
	s.Log.WithError(err).WithField("path", path).Warn("Failed to hash file, excluding it from this cycle")
}

func (s *SyncLogger) DirectoryEnsured(remotePath string, err error) {
	if err != nil {
		s.Log.WithError(err).WithField("remote", remotePath).Error("Failed to ensure remote directory")
		return
	}
	s.Log.WithField("remote", remotePath).Debug("Remote directory ensured")
}

func (s *SyncLogger) Transfer(localPath, remotePath string, dryRun bool) {
	entry := s.Log.WithFields(logrus.Fields{"path": localPath, "remote": remotePath})
	if dryRun {
		entry.Info("(dryrun) copy")
		return
	}
	entry.Info("Copied")
}

func (s *SyncLogger) TransferFailed(localPath, remotePath string, err error) {
	s.Log.WithError(err).WithFields(logrus.Fields{"path": localPath, "remote": remotePath}).Error("Copy failed")
}

func (s *SyncLogger) RemoteUnavailable(remotePath string, err error) {
	s.Log.WithError(err).WithField("remote", remotePath).
		Error("Remote listing unavailable, treating remote as empty")
}

func (s *SyncLogger) Info(message string) {
	s.Log.Info(message)
}

func (s *SyncLogger) Warn(message string) {
	s.Log.Warn(message)
}

func (s *SyncLogger) Error(operation, path string, err error) {
	s.Log.WithError(err).WithFields(logrus.Fields{"operation": operation, "path": path}).Error("Operation failed")
}

func (s *SyncLogger) Debug(message string) {
	s.Log.Debug(message)
}

// NullLogger discards every event.
type NullLogger struct{}

func (NullLogger) CycleStart(int)                                           {}
func (NullLogger) CycleComplete(int, time.Duration, map[string]interface{}) {}
func (NullLogger) Hashed(string, string)                                    {}
func (NullLogger) HashFailed(string, error)                                 {}
func (NullLogger) DirectoryEnsured(string, error)                           {}
func (NullLogger) Transfer(string, string, bool)                            {}
func (NullLogger) TransferFailed(string, string, error)                     {}
func (NullLogger) RemoteUnavailable(string, error)                          {}
func (NullLogger) Info(string)                                              {}
func (NullLogger) Warn(string)                                              {}
func (NullLogger) Error(string, string, error)                              {}
func (NullLogger) Debug(string)                                             {}
