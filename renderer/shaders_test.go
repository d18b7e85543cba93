package renderer

import (
	"testing"

	"github.com/gogpu/naga"
)

const spirvMagic = 0x07230203

func TestEmbeddedShadersCompile(t *testing.T) {
	paths := append([]string{"shaders/screen.vert.wgsl"}, fragShaderFiles[:]...)

	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			source, err := shaderFS.ReadFile(path)
			if err != nil {
				t.Fatalf("reading %s: %v", path, err)
			}

			spirv, err := naga.Compile(string(source))
			if err != nil {
				t.Fatalf("compiling %s: %v", path, err)
			}
			if len(spirv) == 0 || len(spirv)%4 != 0 {
				t.Fatalf("SPIR-V length = %d, want a non-empty multiple of 4", len(spirv))
			}

			words := bytesToBytecode(spirv)
			if words[0] != spirvMagic {
				t.Errorf("SPIR-V magic = %#x, want %#x", words[0], spirvMagic)
			}
		})
	}
}

func TestBytesToBytecodeLittleEndian(t *testing.T) {
	words := bytesToBytecode([]byte{0x03, 0x02, 0x23, 0x07, 0xff, 0x00, 0x00, 0x00})
	if len(words) != 2 {
		t.Fatalf("word count = %d, want 2", len(words))
	}
	if words[0] != spirvMagic {
		t.Errorf("words[0] = %#x, want %#x", words[0], spirvMagic)
	}
	if words[1] != 0xff {
		t.Errorf("words[1] = %#x, want 0xff", words[1])
	}
}
