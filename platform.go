package vkm

import (
	"fmt"

	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"
)

// InitGLFW initializes GLFW for Vulkan use and points the vulkan-go
// binding's proc-address resolution at GLFW's loader. Call once before
// creating any window or Selector.
func InitGLFW() error {
	if err := glfw.Init(); err != nil {
		return fmt.Errorf("vkm: failed to init glfw: %w", err)
	}
	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vk.Init(); err != nil {
		return fmt.Errorf("vkm: failed to init vulkan loader: %w", err)
	}
	return nil
}

// TerminateGLFW shuts GLFW down. Call after every window and the Vulkan
// instance have been destroyed.
func TerminateGLFW() {
	glfw.Terminate()
}

// InstanceExtensionsGLFW returns the instance extensions GLFW requires to
// present to the windows it creates, for passing to Selector's
// RequireInstanceExtension/WantInstanceExtension.
func InstanceExtensionsGLFW() []string {
	return glfw.GetRequiredInstanceExtensions()
}

// Window wraps a GLFW window together with the Vulkan surface created
// against it, tying their lifetimes together.
type Window struct {
	win     *glfw.Window
	surface vk.Surface
}

// NewWindow creates a non-resizable GLFW window with no client API bound
// (Vulkan manages its own swapchain) and a Vulkan surface against it.
func NewWindow(width, height int, title string, instance vk.Instance) (*Window, error) {
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("vkm: failed to create window: %w", err)
	}

	surfacePtr, err := win.CreateWindowSurface(instance, nil)
	if err != nil {
		win.Destroy()
		return nil, fmt.Errorf("vkm: failed to create window surface: %w", err)
	}

	return &Window{win: win, surface: vk.SurfaceFromPointer(surfacePtr)}, nil
}

// Surface returns the window's Vulkan surface.
func (w *Window) Surface() vk.Surface { return w.surface }

// Extent returns the window's current framebuffer size.
func (w *Window) Extent() vk.Extent2D {
	width, height := w.win.GetFramebufferSize()
	return vk.Extent2D{Width: uint32(width), Height: uint32(height)}
}

// ShouldClose reports whether the user requested the window be closed.
func (w *Window) ShouldClose() bool { return w.win.ShouldClose() }

// PollEvents processes pending GLFW window/input events.
func PollEvents() { glfw.PollEvents() }

// Destroy destroys the Vulkan surface and the underlying GLFW window.
// instance must still be valid; call this before destroying the instance.
func (w *Window) Destroy(instance vk.Instance) {
	vk.DestroySurface(instance, w.surface, nil)
	w.win.Destroy()
}
