package renderer

import (
	"embed"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/naga"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/emucore/vkpresent/device"
)

//go:embed shaders
var shaderFS embed.FS

// Fragment shader indices. These double as pipeline indices: each fragment
// variant gets one pipeline.
const (
	fragShaderNormal = iota
	fragShaderAnaglyph
	fragShaderInterlaced
	fragShaderCount
)

var fragShaderFiles = [fragShaderCount]string{
	fragShaderNormal:     "shaders/screen.frag.wgsl",
	fragShaderAnaglyph:   "shaders/screen_anaglyph.frag.wgsl",
	fragShaderInterlaced: "shaders/screen_interlaced.frag.wgsl",
}

// shaderSet holds the compiled presentation shader modules.
type shaderSet struct {
	vert core1_0.ShaderModule
	frag [fragShaderCount]core1_0.ShaderModule
}

// compileShaderModule compiles WGSL source to SPIR-V and wraps it in a
// shader module.
func compileShaderModule(dev *device.GraphicsDevice, path string) (core1_0.ShaderModule, error) {
	source, err := shaderFS.ReadFile(path)
	if err != nil {
		return core1_0.ShaderModule{}, errors.Wrapf(err, "reading shader %s", path)
	}

	spirv, err := naga.Compile(string(source))
	if err != nil {
		return core1_0.ShaderModule{}, errors.Wrapf(err, "compiling shader %s", path)
	}

	module, _, err := dev.Driver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: bytesToBytecode(spirv),
	})
	if err != nil {
		return core1_0.ShaderModule{}, errors.Wrapf(err, "creating shader module for %s", path)
	}
	return module, nil
}

// buildShaderSet compiles the vertex shader and every fragment variant.
func buildShaderSet(dev *device.GraphicsDevice) (*shaderSet, error) {
	set := &shaderSet{}

	vert, err := compileShaderModule(dev, "shaders/screen.vert.wgsl")
	if err != nil {
		return nil, err
	}
	set.vert = vert

	for i, path := range fragShaderFiles {
		frag, err := compileShaderModule(dev, path)
		if err != nil {
			set.destroy(dev)
			return nil, err
		}
		set.frag[i] = frag
	}
	return set, nil
}

func (s *shaderSet) destroy(dev *device.GraphicsDevice) {
	if s.vert.Initialized() {
		dev.Driver.DestroyShaderModule(s.vert, nil)
		s.vert = core1_0.ShaderModule{}
	}
	for i := range s.frag {
		if s.frag[i].Initialized() {
			dev.Driver.DestroyShaderModule(s.frag[i], nil)
			s.frag[i] = core1_0.ShaderModule{}
		}
	}
}

// bytesToBytecode packs little-endian SPIR-V bytes into 32-bit words.
func bytesToBytecode(b []byte) []uint32 {
	byteCode := make([]uint32, len(b)/4)
	for i := 0; i < len(byteCode); i++ {
		byteIndex := i * 4
		byteCode[i] = 0
		byteCode[i] |= uint32(b[byteIndex])
		byteCode[i] |= uint32(b[byteIndex+1]) << 8
		byteCode[i] |= uint32(b[byteIndex+2]) << 16
		byteCode[i] |= uint32(b[byteIndex+3]) << 24
	}
	return byteCode
}
