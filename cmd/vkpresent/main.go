// vkpresent opens a window and composites a synthetic pair of emulated
// screens into it. It stands in for an emulator frontend: it owns the
// Vulkan instance and device, feeds the compositor a generated guest
// framebuffer, and maps a few keys to the presentation settings.
package main

import (
	"image"
	"log"
	"log/slog"
	"os"
	"runtime"

	"image/png"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	core "github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"

	"github.com/emucore/vkpresent/device"
	"github.com/emucore/vkpresent/layout"
	"github.com/emucore/vkpresent/renderer"
	"github.com/emucore/vkpresent/settings"
)

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}
var deviceExtensions = []string{khr_swapchain.ExtensionName}

type application struct {
	window *sdl.Window

	globalDriver   core1_0.GlobalDriver
	instanceDriver core1_0.CoreInstanceDriver
	deviceDriver   core1_0.CoreDeviceDriver

	debugDriver    ext_debug_utils.ExtensionDriver
	debugMessenger ext_debug_utils.DebugUtilsMessenger

	surfaceExtension khr_surface.ExtensionDriver
	surface          khr_surface.Surface

	physicalDevice core1_0.PhysicalDevice
	graphicsFamily int
	presentFamily  int

	enableValidation bool

	dev        *device.GraphicsDevice
	scheduler  *renderer.Scheduler
	passes     *renderer.RenderPassCache
	compositor *renderer.Compositor
	present    *renderer.PresentWindow

	settings settings.Settings
	source   *testPatternSource
}

func main() {
	runtime.LockOSThread()

	app := &application{
		enableValidation: os.Getenv("VKPRESENT_VALIDATION") != "",
	}
	if os.Getenv("VKPRESENT_LOG") != "" {
		renderer.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	if err := app.run(); err != nil {
		log.Fatalln(err)
	}
}

func (app *application) run() error {
	if err := app.initWindow(); err != nil {
		return err
	}
	defer app.cleanup()

	if err := app.initVulkan(); err != nil {
		return err
	}
	return app.mainLoop()
}

func (app *application) initWindow() error {
	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return err
	}

	window, err := sdl.CreateWindow("vkpresent",
		sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, 800, 960,
		sdl.WINDOW_SHOWN|sdl.WINDOW_RESIZABLE|sdl.WINDOW_VULKAN)
	if err != nil {
		return err
	}
	app.window = window

	app.globalDriver, err = core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	return err
}

func (app *application) initVulkan() error {
	if err := app.createInstance(); err != nil {
		return err
	}
	if err := app.setupDebugMessenger(); err != nil {
		return err
	}
	if err := app.createSurface(); err != nil {
		return err
	}
	if err := app.pickPhysicalDevice(); err != nil {
		return err
	}
	if err := app.createLogicalDevice(); err != nil {
		return err
	}

	dev, err := device.New(app.instanceDriver, app.deviceDriver, app.physicalDevice,
		app.surfaceExtension, app.graphicsFamily, app.presentFamily)
	if err != nil {
		return err
	}
	app.dev = dev

	app.scheduler = renderer.NewScheduler(dev)
	app.passes = renderer.NewRenderPassCache(dev, app.scheduler)
	app.present = renderer.NewPresentWindow(dev, app.passes, app.window, app.surface)

	app.source = newTestPatternSource()
	app.compositor = renderer.NewCompositor(dev, app.scheduler, app.passes,
		&app.settings, app.source, nil)
	app.compositor.SetSecondWindowBuilder(app.createSecondWindow)
	return app.compositor.Initialize()
}

func (app *application) createInstance() error {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    "vkpresent",
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "vkpresent",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	sdlExtensions := app.window.VulkanGetInstanceExtensions()
	extensions, _, err := app.globalDriver.AvailableExtensions()
	if err != nil {
		return err
	}

	for _, ext := range sdlExtensions {
		if _, hasExt := extensions[ext]; !hasExt {
			return errors.Newf("missing required instance extension %s", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	if _, supported := extensions[khr_portability_enumeration.ExtensionName]; supported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if app.enableValidation {
		layers, _, err := app.globalDriver.AvailableLayers()
		if err != nil {
			return err
		}
		for _, layer := range validationLayers {
			if _, hasLayer := layers[layer]; !hasLayer {
				return errors.Newf("validation layer %s not available", layer)
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
		instanceOptions.Next = app.debugMessengerOptions()
	}

	app.instanceDriver, _, err = app.globalDriver.CreateInstance(nil, instanceOptions)
	return err
}

func (app *application) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    app.logDebug,
	}
}

func (app *application) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	log.Printf("[%s %s] - %s", severity, msgType, data.Message)
	return false
}

func (app *application) setupDebugMessenger() error {
	if !app.enableValidation {
		return nil
	}

	var err error
	app.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(app.instanceDriver)
	app.debugMessenger, _, err = app.debugDriver.CreateDebugUtilsMessenger(nil, app.debugMessengerOptions())
	return err
}

func (app *application) createSurface() error {
	app.surfaceExtension = khr_surface.CreateExtensionDriverFromCoreDriver(app.instanceDriver)
	surface, err := vkng_sdl2.CreateSurface(app.instanceDriver.Instance(), app.surfaceExtension, app.window)
	if err != nil {
		return err
	}
	app.surface = surface
	return nil
}

func (app *application) findQueueFamilies(physical core1_0.PhysicalDevice) (graphics, present int, err error) {
	graphics, present = -1, -1
	queueFamilies := app.instanceDriver.GetPhysicalDeviceQueueFamilyProperties(physical)

	for queueFamilyIdx, queueFamily := range queueFamilies {
		if graphics < 0 && (queueFamily.QueueFlags&core1_0.QueueGraphics) != 0 {
			graphics = queueFamilyIdx
		}

		supported, _, err := app.surfaceExtension.GetPhysicalDeviceSurfaceSupport(app.surface, physical, queueFamilyIdx)
		if err != nil {
			return -1, -1, err
		}
		if present < 0 && supported {
			present = queueFamilyIdx
		}

		if graphics >= 0 && present >= 0 {
			break
		}
	}
	if graphics < 0 || present < 0 {
		return -1, -1, errors.New("device lacks graphics or present queue")
	}
	return graphics, present, nil
}

func (app *application) isDeviceSuitable(physical core1_0.PhysicalDevice) bool {
	_, _, err := app.findQueueFamilies(physical)
	if err != nil {
		return false
	}

	extensions, _, err := app.instanceDriver.EnumerateDeviceExtensionProperties(physical)
	if err != nil {
		return false
	}
	for _, ext := range deviceExtensions {
		if _, hasExt := extensions[ext]; !hasExt {
			return false
		}
	}

	formats, _, err := app.surfaceExtension.GetPhysicalDeviceSurfaceFormats(app.surface, physical)
	if err != nil || len(formats) == 0 {
		return false
	}
	modes, _, err := app.surfaceExtension.GetPhysicalDeviceSurfacePresentModes(app.surface, physical)
	if err != nil || len(modes) == 0 {
		return false
	}

	features := app.instanceDriver.GetPhysicalDeviceFeatures(physical)
	return features.SamplerAnisotropy
}

func (app *application) pickPhysicalDevice() error {
	physicalDevices, _, err := app.instanceDriver.EnumeratePhysicalDevices()
	if err != nil {
		return err
	}

	for _, physical := range physicalDevices {
		if app.isDeviceSuitable(physical) {
			app.physicalDevice = physical
			break
		}
	}
	if !app.physicalDevice.Initialized() {
		return errors.New("no suitable GPU found")
	}

	app.graphicsFamily, app.presentFamily, err = app.findQueueFamilies(app.physicalDevice)
	return err
}

func (app *application) createLogicalDevice() error {
	uniqueQueueFamilies := []int{app.graphicsFamily}
	if app.presentFamily != app.graphicsFamily {
		uniqueQueueFamilies = append(uniqueQueueFamilies, app.presentFamily)
	}

	var queueFamilyOptions []core1_0.DeviceQueueCreateInfo
	for _, queueFamily := range uniqueQueueFamilies {
		queueFamilyOptions = append(queueFamilyOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: queueFamily,
			QueuePriorities:  []float32{1.0},
		})
	}

	extensionNames := append([]string{}, deviceExtensions...)

	extensions, _, err := app.instanceDriver.EnumerateDeviceExtensionProperties(app.physicalDevice)
	if err != nil {
		return err
	}
	if _, supported := extensions[khr_portability_subset.ExtensionName]; supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	app.deviceDriver, _, err = app.instanceDriver.CreateDevice(app.physicalDevice, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: queueFamilyOptions,
		EnabledFeatures: &core1_0.PhysicalDeviceFeatures{
			SamplerAnisotropy: true,
		},
		EnabledExtensionNames: extensionNames,
	})
	return err
}

// createSecondWindow opens the secondary display window the first time
// split presentation is toggled on.
func (app *application) createSecondWindow() (*renderer.PresentWindow, error) {
	window, err := sdl.CreateWindow("vkpresent sub",
		sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED, 640, 480,
		sdl.WINDOW_SHOWN|sdl.WINDOW_RESIZABLE|sdl.WINDOW_VULKAN)
	if err != nil {
		return nil, err
	}

	surface, err := vkng_sdl2.CreateSurface(app.instanceDriver.Instance(), app.surfaceExtension, window)
	if err != nil {
		_ = window.Destroy()
		return nil, err
	}
	return renderer.NewPresentWindow(app.dev, app.passes, window, surface), nil
}

func (app *application) mainLoop() error {
	running := true
	for running {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case *sdl.QuitEvent:
				running = false
			case *sdl.KeyboardEvent:
				if e.Type == sdl.KEYDOWN {
					app.handleKey(e.Keysym.Sym)
				}
			}
		}

		app.source.Advance()
		if err := app.compositor.SwapBuffers(app.present, nil); err != nil {
			return err
		}
	}
	return nil
}

func (app *application) handleKey(key sdl.Keycode) {
	switch key {
	case sdl.K_1:
		app.settings.SetRender3D(settings.StereoOff)
	case sdl.K_2:
		app.settings.SetRender3D(settings.StereoSideBySide)
	case sdl.K_3:
		app.settings.SetRender3D(settings.StereoAnaglyph)
	case sdl.K_4:
		app.settings.SetRender3D(settings.StereoInterlaced)
	case sdl.K_5:
		app.settings.SetRender3D(settings.StereoReverseInterlaced)
	case sdl.K_6:
		app.settings.SetRender3D(settings.StereoCardboardVR)
	case sdl.K_s:
		app.settings.SetSwapScreen(!app.settings.SwapScreen())
	case sdl.K_w:
		app.settings.SetSeparateWindows(!app.settings.SeparateWindows())
	case sdl.K_f:
		app.settings.SetFilterLinear(!app.settings.FilterLinear())
	case sdl.K_b:
		app.settings.SetBackgroundColor(0.1, 0.1, 0.3)
	case sdl.K_p:
		app.requestScreenshot()
	}
}

func (app *application) requestScreenshot() {
	width, height := app.present.PixelSize()
	fb := layout.DefaultLayout(uint32(width), uint32(height), app.settings.SwapScreen())
	output := make([]byte, fb.Width*fb.Height*4)

	req := settings.ScreenshotRequest{
		Layout: fb,
		Output: output,
	}
	req.Done = func() {
		if err := savePNG(output, int(fb.Width), int(fb.Height)); err != nil {
			log.Printf("saving screenshot: %v", err)
		}
	}
	app.settings.RequestScreenshot(req)
}

func savePNG(rgba []byte, width, height int) error {
	img := &image.RGBA{
		Pix:    rgba,
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}

	file, err := os.Create("screenshot.png")
	if err != nil {
		return err
	}
	defer file.Close()
	return png.Encode(file, img)
}

func (app *application) cleanup() {
	if app.compositor != nil {
		_ = app.scheduler.Finish()
		_ = app.dev.WaitIdle()
		app.compositor.Destroy()
		app.scheduler.Destroy()
		app.passes.Destroy()
		app.present.Destroy()
	}
	if app.deviceDriver != nil {
		app.deviceDriver.DestroyDevice(nil)
	}
	if app.debugMessenger.Initialized() {
		app.debugDriver.DestroyDebugUtilsMessenger(app.debugMessenger, nil)
	}
	if app.instanceDriver != nil {
		app.instanceDriver.DestroyInstance(nil)
	}
	if app.window != nil {
		_ = app.window.Destroy()
	}
	sdl.Quit()
}
