package vkm

import (
	"fmt"
	"sync"

	vk "github.com/vulkan-go/vulkan"
)

// InitInfo configures the process-wide singleton. If Instance is the zero
// value, Init returns ErrIncomplete and the caller must proceed through a
// Selector's CreateInstance instead.
type InitInfo struct {
	Logger         *Logger
	GetInstanceProcAddr uintptr
	Instance       vk.Instance
	GainOwnership  bool
}

// ErrIncomplete is returned by Init when no native instance was supplied;
// the caller is expected to build one via Selector.CreateInstance.
var ErrIncomplete = fmt.Errorf("vkm: init incomplete, no instance supplied")

type globalState struct {
	mu       sync.Mutex
	once     sync.Once
	instance vk.Instance
	owned    bool
	logger   *Logger
}

var global globalState

// Init wraps the process-wide native-instance pointer and global
// function-pointer table in a once-initialized container, matching the
// "Global state" design note: these have process lifetime between Init and
// Shutdown.
func Init(info InitInfo) error {
	global.mu.Lock()
	defer global.mu.Unlock()

	global.once.Do(func() {
		if info.GetInstanceProcAddr != 0 {
			vk.SetGetInstanceProcAddr(info.GetInstanceProcAddr)
		}
	})

	if info.Logger != nil {
		global.logger = info.Logger
		SetDefaultLogger(info.Logger)
	}

	if info.Instance == nil {
		return ErrIncomplete
	}

	global.instance = info.Instance
	global.owned = info.GainOwnership
	return nil
}

// Shutdown tears down the process-wide singleton. If the instance was
// gained via ownership transfer at Init, it is destroyed here; otherwise
// the caller remains responsible for it.
func Shutdown() {
	global.mu.Lock()
	defer global.mu.Unlock()

	if global.instance != nil && global.owned {
		vk.DestroyInstance(global.instance, nil)
	}
	global.instance = nil
	global.owned = false
	global.logger = nil
	global.once = sync.Once{}
}

// Instance returns the process-wide native instance, or nil if Init has not
// completed successfully.
func Instance() vk.Instance {
	global.mu.Lock()
	defer global.mu.Unlock()
	return global.instance
}
