package server

import (
	"context"
	"encoding/json"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const debounceConfigRereadDuration = time.Second * 5

// asleepConfigLoader overlays a JSON file on the flag-provided asleep status
type asleepConfigLoader struct {
	fileName  string
	base      AsleepStatus
	responder *asleepResponder
	debounce  time.Duration
}

func newAsleepConfigLoader(fileName string, responder *asleepResponder) *asleepConfigLoader {
	return &asleepConfigLoader{
		fileName:  fileName,
		base:      *responder.Status(),
		responder: responder,
		debounce:  debounceConfigRereadDuration,
	}
}

// Load applies the file if it exists. A missing file leaves the flag defaults in place.
func (l *asleepConfigLoader) Load() error {
	logrus.WithField("asleepConfig", l.fileName).Info("Loading asleep status config file")

	status, readErr := l.readFile()
	if readErr != nil {
		if errors.Is(readErr, fs.ErrNotExist) {
			logrus.WithField("asleepConfig", l.fileName).Info("Asleep status config file does not exist, skipping reading it")
			return nil
		}
		return readErr
	}

	l.responder.Set(status)
	return nil
}

func (l *asleepConfigLoader) Reload() error {
	status, readErr := l.readFile()
	if readErr != nil {
		return readErr
	}

	logrus.WithField("asleepConfig", l.fileName).Info("Re-loaded asleep status config file")
	l.responder.Set(status)
	return nil
}

func (l *asleepConfigLoader) WatchForChanges(ctx context.Context) error {
	if l.fileName == "" {
		return errors.New("asleep status config file needs to be specified first")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "Could not create a watcher")
	}

	err = watcher.Add(l.fileName)
	if err != nil {
		_ = watcher.Close()
		return errors.Wrap(err, "Could not watch the asleep status config file")
	}

	go func() {
		logrus.WithField("file", l.fileName).Info("Watching asleep status config file")

		debounceTimerChan := make(<-chan time.Time)
		var debounceTimer *time.Timer

		//goland:noinspection GoUnhandledErrorResult
		defer watcher.Close()
		for {
			select {

			case event, ok := <-watcher.Events:
				if !ok {
					logrus.Debug("Watcher events channel closed")
					return
				}
				logrus.
					WithField("file", event.Name).
					WithField("op", event.Op).
					Trace("fs event received")
				if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
					if debounceTimer == nil {
						debounceTimer = time.NewTimer(l.debounce)
					} else {
						debounceTimer.Reset(l.debounce)
					}
					debounceTimerChan = debounceTimer.C
					logrus.WithField("delay", l.debounce).Debug("Will re-read config file after delay")
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logrus.WithError(err).Warn("Error watching asleep status config file")

			case <-debounceTimerChan:
				if readErr := l.Reload(); readErr != nil {
					logrus.
						WithError(readErr).
						WithField("asleepConfig", l.fileName).
						Error("Could not re-read the asleep status config file")
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// readFile decodes the file over a copy of the base status, so omitted fields keep their flag values
func (l *asleepConfigLoader) readFile() (*AsleepStatus, error) {
	status := l.base
	if l.base.StartingDescription != nil {
		starting := *l.base.StartingDescription
		status.StartingDescription = &starting
	}

	content, err := os.ReadFile(l.fileName)
	if err != nil {
		return nil, errors.Wrap(err, "Could not load the asleep status config file")
	}

	if err := json.Unmarshal(content, &status); err != nil {
		return nil, errors.Wrap(err, "Could not parse the json asleep status config file")
	}

	if status.Favicon != "" && !strings.HasPrefix(status.Favicon, "data:") {
		favicon, err := LoadFavicon(status.Favicon)
		if err != nil {
			return nil, err
		}
		status.Favicon = favicon
	}

	return &status, nil
}
