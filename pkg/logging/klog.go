package logging

import (
	"github.com/go-logr/logr"
	"k8s.io/klog/v2"
)

// AppLogger receives client-go output.
const AppLogger = "app"

// InstallKlog routes klog (client-go) output into the app logger.
func (m *Manager) InstallKlog() {
	klog.SetLogger(m.Logr(AppLogger))
}

// Logr returns the named logger as a logr.Logger.
func (m *Manager) Logr(name string) logr.Logger {
	return logr.FromSlogHandler(m.Logger(name).Handler())
}
