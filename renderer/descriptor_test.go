package renderer

import (
	"testing"

	"github.com/vkngwrapper/core/v3/core1_0"
)

func TestDescriptorWritesBindingsAndLayout(t *testing.T) {
	var views [screenTextureCount]core1_0.ImageView
	writes := descriptorWrites(core1_0.DescriptorSet{}, views, core1_0.Sampler{})

	if len(writes) != screenTextureCount+1 {
		t.Fatalf("write count = %d, want %d", len(writes), screenTextureCount+1)
	}

	for i := 0; i < screenTextureCount; i++ {
		write := writes[i]
		if write.DstBinding != i {
			t.Errorf("write %d binding = %d, want %d", i, write.DstBinding, i)
		}
		if write.DescriptorType != core1_0.DescriptorTypeSampledImage {
			t.Errorf("write %d type = %v, want sampled image", i, write.DescriptorType)
		}
		if len(write.ImageInfo) != 1 {
			t.Fatalf("write %d has %d image infos, want 1", i, len(write.ImageInfo))
		}
		// Screen textures live in the general layout for their whole
		// lifetime; declaring anything else here is a validation error.
		if write.ImageInfo[0].ImageLayout != core1_0.ImageLayoutGeneral {
			t.Errorf("write %d layout = %v, want general", i, write.ImageInfo[0].ImageLayout)
		}
	}

	sampler := writes[screenTextureCount]
	if sampler.DstBinding != screenTextureCount {
		t.Errorf("sampler binding = %d, want %d", sampler.DstBinding, screenTextureCount)
	}
	if sampler.DescriptorType != core1_0.DescriptorTypeSampler {
		t.Errorf("sampler type = %v, want sampler", sampler.DescriptorType)
	}
}
