package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/emucore/vkpresent/device"
)

const descriptorPoolSets = 64

// screenTextureCount is the number of screen textures visible to one draw:
// the top screen's left and right eyes plus the bottom screen.
const screenTextureCount = 3

// descriptorKey identifies one combination of bound screen views and
// sampler. Frames reuse the same textures almost every frame, so the cache
// stays tiny.
type descriptorKey struct {
	views   [screenTextureCount]core1_0.ImageView
	sampler core1_0.Sampler
}

// DescriptorSetProvider owns the presentation descriptor layout and hands
// out cached descriptor sets binding the three screen textures and the
// active sampler.
type DescriptorSetProvider struct {
	dev *device.GraphicsDevice

	layout core1_0.DescriptorSetLayout
	pool   core1_0.DescriptorPool
	cache  map[descriptorKey]core1_0.DescriptorSet

	// allocate is swapped by tests to avoid device interaction.
	allocate func() (core1_0.DescriptorSet, error)
}

// NewDescriptorSetProvider creates the provider. The layout and pool are
// built lazily on first use.
func NewDescriptorSetProvider(dev *device.GraphicsDevice) *DescriptorSetProvider {
	p := &DescriptorSetProvider{
		dev:   dev,
		cache: make(map[descriptorKey]core1_0.DescriptorSet),
	}
	p.allocate = p.allocateFromPool
	return p
}

// Layout returns the descriptor set layout, creating it on first call.
// Bindings 0 through 2 are the sampled screen textures; binding 3 is the
// sampler shared by all three.
func (p *DescriptorSetProvider) Layout() (core1_0.DescriptorSetLayout, error) {
	if p.layout.Initialized() {
		return p.layout, nil
	}

	bindings := make([]core1_0.DescriptorSetLayoutBinding, 0, screenTextureCount+1)
	for i := 0; i < screenTextureCount; i++ {
		bindings = append(bindings, core1_0.DescriptorSetLayoutBinding{
			Binding:         i,
			DescriptorType:  core1_0.DescriptorTypeSampledImage,
			DescriptorCount: 1,
			StageFlags:      core1_0.StageFragment,
		})
	}
	bindings = append(bindings, core1_0.DescriptorSetLayoutBinding{
		Binding:         screenTextureCount,
		DescriptorType:  core1_0.DescriptorTypeSampler,
		DescriptorCount: 1,
		StageFlags:      core1_0.StageFragment,
	})

	layout, _, err := p.dev.Driver.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: bindings,
	})
	if err != nil {
		return core1_0.DescriptorSetLayout{}, errors.Wrap(err, "creating presentation descriptor layout")
	}
	p.layout = layout
	return layout, nil
}

func (p *DescriptorSetProvider) ensurePool() error {
	if p.pool.Initialized() {
		return nil
	}
	pool, _, err := p.dev.Driver.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets: descriptorPoolSets,
		PoolSizes: []core1_0.DescriptorPoolSize{
			{Type: core1_0.DescriptorTypeSampledImage, DescriptorCount: descriptorPoolSets * screenTextureCount},
			{Type: core1_0.DescriptorTypeSampler, DescriptorCount: descriptorPoolSets},
		},
	})
	if err != nil {
		return errors.Wrap(err, "creating presentation descriptor pool")
	}
	p.pool = pool
	return nil
}

func (p *DescriptorSetProvider) allocateFromPool() (core1_0.DescriptorSet, error) {
	layout, err := p.Layout()
	if err != nil {
		return core1_0.DescriptorSet{}, err
	}
	if err := p.ensurePool(); err != nil {
		return core1_0.DescriptorSet{}, err
	}

	sets, _, err := p.dev.Driver.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: p.pool,
		SetLayouts:     []core1_0.DescriptorSetLayout{layout},
	})
	if err != nil {
		return core1_0.DescriptorSet{}, errors.Wrap(err, "allocating presentation descriptor set")
	}
	return sets[0], nil
}

// Acquire returns a descriptor set binding the given screen views and
// sampler, allocating and writing one only on a cache miss.
func (p *DescriptorSetProvider) Acquire(views [screenTextureCount]core1_0.ImageView, sampler core1_0.Sampler) (core1_0.DescriptorSet, error) {
	key := descriptorKey{views: views, sampler: sampler}
	if set, ok := p.cache[key]; ok {
		return set, nil
	}

	set, err := p.allocate()
	if err != nil {
		return core1_0.DescriptorSet{}, err
	}

	err = p.dev.Driver.UpdateDescriptorSets(descriptorWrites(set, views, sampler), nil)
	if err != nil {
		return core1_0.DescriptorSet{}, errors.Wrap(err, "writing presentation descriptor set")
	}

	p.cache[key] = set
	return set, nil
}

// descriptorWrites builds the write list binding the screen views and the
// shared sampler. Screen textures stay in the general layout for their
// whole lifetime, so the writes declare it.
func descriptorWrites(set core1_0.DescriptorSet, views [screenTextureCount]core1_0.ImageView,
	sampler core1_0.Sampler) []core1_0.WriteDescriptorSet {

	writes := make([]core1_0.WriteDescriptorSet, 0, screenTextureCount+1)
	for i, view := range views {
		writes = append(writes, core1_0.WriteDescriptorSet{
			DstSet:          set,
			DstBinding:      i,
			DstArrayElement: 0,
			DescriptorType:  core1_0.DescriptorTypeSampledImage,
			ImageInfo: []core1_0.DescriptorImageInfo{
				{
					ImageView:   view,
					ImageLayout: core1_0.ImageLayoutGeneral,
				},
			},
		})
	}
	writes = append(writes, core1_0.WriteDescriptorSet{
		DstSet:          set,
		DstBinding:      screenTextureCount,
		DstArrayElement: 0,
		DescriptorType:  core1_0.DescriptorTypeSampler,
		ImageInfo: []core1_0.DescriptorImageInfo{
			{Sampler: sampler},
		},
	})
	return writes
}

// Invalidate drops every cached set. Called when a screen texture is
// reallocated so stale view handles are never rebound.
func (p *DescriptorSetProvider) Invalidate() {
	for key := range p.cache {
		delete(p.cache, key)
	}
	if p.pool.Initialized() {
		_, _ = p.dev.Driver.ResetDescriptorPool(p.pool, 0)
	}
}

// Destroy releases the pool and layout.
func (p *DescriptorSetProvider) Destroy() {
	if p.pool.Initialized() {
		p.dev.Driver.DestroyDescriptorPool(p.pool, nil)
		p.pool = core1_0.DescriptorPool{}
	}
	if p.layout.Initialized() {
		p.dev.Driver.DestroyDescriptorSetLayout(p.layout, nil)
		p.layout = core1_0.DescriptorSetLayout{}
	}
	p.cache = make(map[descriptorKey]core1_0.DescriptorSet)
}
