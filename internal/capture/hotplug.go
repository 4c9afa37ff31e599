package capture

import (
	"log"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// HotplugWatcher watches the kernel device directories for camera
// attach/detach events and signals on Changes whenever the set of
// devices could have changed (spec §4.C.2); the receiver re-enumerates.
type HotplugWatcher struct {
	watcher *fsnotify.Watcher
	Changes chan struct{}
}

// watchPaths are the kernel directories whose create/remove events
// signal a camera-list change; PipeWire-sourced devices get their own
// portal-subscription notification inside the pipewire backend and do
// not need this watcher.
var watchPaths = []string{"/dev", "/sys/class/video4linux"}

// NewHotplugWatcher starts watching for device attach/detach. Changes
// receives one value (never blocking; buffered, drops on full) per
// batch of filesystem events.
func NewHotplugWatcher() (*HotplugWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, newErr("hotplug", KindNotAvailable, err)
	}
	for _, p := range watchPaths {
		if err := w.Add(p); err != nil {
			log.Printf("[Hotplug] cannot watch %s: %v", p, err)
		}
	}
	hw := &HotplugWatcher{watcher: w, Changes: make(chan struct{}, 1)}
	go hw.loop()
	return hw, nil
}

func (hw *HotplugWatcher) loop() {
	for {
		select {
		case ev, ok := <-hw.watcher.Events:
			if !ok {
				close(hw.Changes)
				return
			}
			if !isCameraPath(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			select {
			case hw.Changes <- struct{}{}:
			default:
			}
		case err, ok := <-hw.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[Hotplug] watcher error: %v", err)
		}
	}
}

func isCameraPath(name string) bool {
	base := name
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		base = name[idx+1:]
	}
	return strings.HasPrefix(base, "video") || strings.HasPrefix(base, "media")
}

// Close stops watching.
func (hw *HotplugWatcher) Close() error {
	return hw.watcher.Close()
}

// Reconcile implements spec §4.C.2's reconciliation rule: given the
// previously active device and a fresh enumeration, it reports whether
// that device is still present (by Path) and, if so, its new index
// (devices may have been re-ordered by a kernel re-enumeration).
func Reconcile(active CameraDevice, fresh []CameraDevice) (stillPresent bool, newIndex int) {
	for i, d := range fresh {
		if d.Path == active.Path {
			return true, i
		}
	}
	return false, -1
}
