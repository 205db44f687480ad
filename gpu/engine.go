// Package gpu runs the collision pipeline on a real GPU through WebGPU.
// Every storage buffer sits at the same binding slot the CPU executor uses,
// one compute pipeline exists per kernel entry point, and the per-frame
// pass sequence relies on the implicit storage barriers between dispatches.
//
// The device is requested headless: there is no surface and no window.
package gpu

import (
	"encoding/binary"
	"math"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/pkg/errors"

	"github.com/gekko3d/ripple/bvh"
	"github.com/gekko3d/ripple/collide"
	"github.com/gekko3d/ripple/compute"
	"github.com/gekko3d/ripple/geom"
	"github.com/gekko3d/ripple/shaders"
)

const workGroupSize = 256

// Config sizes the engine. Types and Window mirror the CPU simulator's
// configuration.
type Config struct {
	MaxParticles  int
	MaxCandidates int
	Window        geom.Box2D
	Types         []collide.ParticleProperties
}

// Engine owns the device-resident buffers and pipelines for the whole
// pipeline. Construction failure is the single unrecoverable startup error.
type Engine struct {
	device *wgpu.Device
	queue  *wgpu.Queue
	cfg    Config

	numPolygons int

	buffers   map[uint32]*wgpu.Buffer
	pipelines map[string]*wgpu.ComputePipeline
	binds     map[string]*wgpu.BindGroup

	particleReadback *wgpu.Buffer
	counterReadback  *wgpu.Buffer

	activeCount uint32
	readOffset  uint32
}

// kernelSources pairs each WGSL module with its entry points.
var kernelSources = []struct {
	label   string
	source  *string
	entries []string
}{
	{"update particles", &shaders.UpdateParticlesWGSL, []string{"cs_update_particles"}},
	{"copy particles", &shaders.CopyParticlesWGSL, []string{"cs_copy_particles"}},
	{"generate sorting data", &shaders.GenerateSortingDataWGSL, []string{"cs_generate_sorting_data"}},
	{"prefix scan", &shaders.PrefixScanWGSL, []string{"cs_scan_stage1", "cs_scan_stage2", "cs_scan_stage3"}},
	{"radix scatter", &shaders.RadixScatterWGSL, []string{"cs_scatter"}},
	{"sort particles", &shaders.SortParticlesWGSL, []string{"cs_sort_particles"}},
	{"guarantee uniqueness", &shaders.GuaranteeUniquenessWGSL, []string{"cs_guarantee_uniqueness"}},
	{"build bvh", &shaders.BuildBvhWGSL, []string{
		"cs_generate_leaf_nodes", "cs_init_internal_nodes",
		"cs_generate_binary_radix_tree", "cs_merge_bounding_volumes"}},
	{"detect collisions", &shaders.DetectCollisionsWGSL, []string{"cs_detect_collisions"}},
	{"resolve collisions", &shaders.ResolveCollisionsWGSL, []string{"cs_resolve_compute", "cs_resolve_apply"}},
	{"resolve polygon collisions", &shaders.ResolvePolygonCollisionsWGSL, []string{"cs_resolve_polygon_collisions"}},
}

// kernelBindings lists, per entry point, the binding slots its bind group
// carries. Pipelines use auto layouts, so the group must contain exactly
// the bindings the shader references.
var kernelBindings = map[string][]uint32{
	"cs_update_particles":          {compute.ParticleBufferBinding, compute.UniformsBinding},
	"cs_copy_particles":            {compute.ParticleBufferBinding, compute.UniformsBinding},
	"cs_generate_sorting_data":     {compute.ParticleBufferBinding, compute.SortingDataBufferBinding, compute.UniformsBinding, compute.ActiveCounterBinding},
	"cs_scan_stage1":               {compute.SortingDataBufferBinding, compute.PrefixScanBufferBinding, compute.UniformsBinding},
	"cs_scan_stage2":               {compute.PrefixScanBufferBinding, compute.UniformsBinding},
	"cs_scan_stage3":               {compute.PrefixScanBufferBinding, compute.UniformsBinding},
	"cs_scatter":                   {compute.SortingDataBufferBinding, compute.PrefixScanBufferBinding, compute.UniformsBinding},
	"cs_sort_particles":            {compute.ParticleBufferBinding, compute.SortingDataBufferBinding, compute.UniformsBinding},
	"cs_guarantee_uniqueness":      {compute.SortingDataBufferBinding, compute.UniformsBinding},
	"cs_generate_leaf_nodes":       {compute.ParticleBufferBinding, compute.ParticlePropertiesBinding, compute.BvhNodeBufferBinding, compute.UniformsBinding},
	"cs_init_internal_nodes":       {compute.BvhNodeBufferBinding, compute.UniformsBinding},
	"cs_generate_binary_radix_tree":{compute.SortingDataBufferBinding, compute.BvhNodeBufferBinding, compute.UniformsBinding},
	"cs_merge_bounding_volumes":    {compute.BvhNodeBufferBinding, compute.UniformsBinding},
	"cs_detect_collisions":         {compute.ParticleBufferBinding, compute.ParticlePropertiesBinding, compute.BvhNodeBufferBinding, compute.PotentialCollisionsBinding, compute.UniformsBinding},
	"cs_resolve_compute":           {compute.ParticleBufferBinding, compute.ParticlePropertiesBinding, compute.PotentialCollisionsBinding, compute.ResolvedVelocityBinding, compute.UniformsBinding},
	"cs_resolve_apply":             {compute.ParticleBufferBinding, compute.PotentialCollisionsBinding, compute.ResolvedVelocityBinding, compute.UniformsBinding},
	"cs_resolve_polygon_collisions":{compute.ParticleBufferBinding, compute.PolygonBufferBinding, compute.PolygonBvhNodeBufferBinding, compute.UniformsBinding},
}

// RequestDevice finds an adapter and allocates a headless device and queue.
func RequestDevice() (*wgpu.Device, error) {
	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return nil, errors.Wrap(err, "request adapter")
	}
	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Collision Device",
	})
	if err != nil {
		return nil, errors.Wrap(err, "request device")
	}
	return device, nil
}

func NewEngine(device *wgpu.Device, cfg Config) (*Engine, error) {
	if cfg.MaxParticles <= 0 {
		return nil, errors.Errorf("max particles must be positive, got %d", cfg.MaxParticles)
	}
	if cfg.MaxCandidates <= 0 || cfg.MaxCandidates > collide.MaxCandidates {
		cfg.MaxCandidates = 10
	}
	if len(cfg.Types) == 0 {
		cfg.Types = []collide.ParticleProperties{{Mass: 1, CollisionRadius: 0.002}}
	}

	e := &Engine{
		device:    device,
		queue:     device.GetQueue(),
		cfg:       cfg,
		buffers:   map[uint32]*wgpu.Buffer{},
		pipelines: map[string]*wgpu.ComputePipeline{},
		binds:     map[string]*wgpu.BindGroup{},
	}
	if err := e.createBuffers(); err != nil {
		return nil, err
	}
	if err := e.createPipelines(); err != nil {
		return nil, err
	}
	e.createBindGroups()
	e.uploadProperties()
	return e, nil
}

func (e *Engine) createStorage(label string, binding uint32, size int) error {
	if size < 4 {
		size = 4
	}
	if old, ok := e.buffers[binding]; ok {
		old.Release()
	}
	buf, err := e.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  uint64(size),
		Usage: wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst | wgpu.BufferUsageCopySrc,
	})
	if err != nil {
		return errors.Wrapf(err, "create buffer %s", label)
	}
	e.buffers[binding] = buf
	return nil
}

func (e *Engine) createBuffers() error {
	n := e.cfg.MaxParticles
	span := 2 * workGroupSize
	padded := (n + span - 1) / span * span
	groups := padded / span

	type alloc struct {
		label   string
		binding uint32
		size    int
	}
	allocs := []alloc{
		{"ParticleBuffer", compute.ParticleBufferBinding, 2 * n * collide.ParticleStride},
		{"ParticleProperties", compute.ParticlePropertiesBinding, len(e.cfg.Types) * collide.PropertiesStride},
		{"SortingDataBuffer", compute.SortingDataBufferBinding, 2 * n * 8},
		{"PrefixScanBuffer", compute.PrefixScanBufferBinding, (1 + padded + maxi(groups, span)) * 4},
		{"BvhNodeBuffer", compute.BvhNodeBufferBinding, (2*n - 1) * 48},
		{"PotentialCollisions", compute.PotentialCollisionsBinding, n * 4 * (1 + collide.MaxCandidates)},
		{"ResolvedVelocity", compute.ResolvedVelocityBinding, n * 16},
		{"PolygonBuffer", compute.PolygonBufferBinding, 32},
		{"PolygonBvhNodeBuffer", compute.PolygonBvhNodeBufferBinding, 48},
		{"ActiveCounter", compute.ActiveCounterBinding, 4},
	}
	for _, a := range allocs {
		if err := e.createStorage(a.label, a.binding, a.size); err != nil {
			return err
		}
	}

	params, err := e.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "SimParams",
		Size:  48,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return errors.Wrap(err, "create params buffer")
	}
	e.buffers[compute.UniformsBinding] = params

	e.particleReadback, err = e.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "ParticleReadback",
		Size:  uint64(n * collide.ParticleStride),
		Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
	})
	if err != nil {
		return errors.Wrap(err, "create particle readback")
	}
	e.counterReadback, err = e.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "CounterReadback",
		Size:  4,
		Usage: wgpu.BufferUsageCopyDst | wgpu.BufferUsageMapRead,
	})
	if err != nil {
		return errors.Wrap(err, "create counter readback")
	}
	return nil
}

func (e *Engine) createPipelines() error {
	for _, src := range kernelSources {
		module, err := e.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
			Label:          src.label,
			WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: *src.source},
		})
		if err != nil {
			return errors.Wrapf(err, "compile %s", src.label)
		}
		for _, entry := range src.entries {
			pipeline, err := e.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
				Label: entry,
				Compute: wgpu.ProgrammableStageDescriptor{
					Module:     module,
					EntryPoint: entry,
				},
			})
			if err != nil {
				return errors.Wrapf(err, "create pipeline %s", entry)
			}
			e.pipelines[entry] = pipeline
		}
		module.Release()
	}
	return nil
}

func (e *Engine) createBindGroups() {
	for _, bg := range e.binds {
		bg.Release()
	}
	for entry, bindings := range kernelBindings {
		pipeline := e.pipelines[entry]
		layout := pipeline.GetBindGroupLayout(0)

		entries := make([]wgpu.BindGroupEntry, 0, len(bindings))
		for _, b := range bindings {
			entries = append(entries, wgpu.BindGroupEntry{
				Binding: b,
				Buffer:  e.buffers[b],
				Size:    wgpu.WholeSize,
			})
		}
		bg, err := e.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   entry,
			Layout:  layout,
			Entries: entries,
		})
		if err != nil {
			panic(err)
		}
		e.binds[entry] = bg
		layout.Release()
	}
}

func (e *Engine) uploadProperties() {
	data := make([]byte, 0, len(e.cfg.Types)*collide.PropertiesStride)
	for i := range e.cfg.Types {
		data = append(data, e.cfg.Types[i].ToBytes()...)
	}
	e.queue.WriteBuffer(e.buffers[compute.ParticlePropertiesBinding], 0, data)
}

// Seed uploads particles into the live half of the particle buffer.
func (e *Engine) Seed(particles []collide.Particle) error {
	if len(particles) > e.cfg.MaxParticles {
		return errors.Errorf("seeding %d particles into %d slots", len(particles), e.cfg.MaxParticles)
	}
	data := make([]byte, e.cfg.MaxParticles*collide.ParticleStride)
	for i := range particles {
		copy(data[i*collide.ParticleStride:], particles[i].ToBytes())
	}
	e.queue.WriteBuffer(e.buffers[compute.ParticleBufferBinding], 0, data)
	return nil
}

// LoadGeometry uploads the static polygons and their prebuilt BVH. The tree
// is built once on the host with the same pipeline the particle tree uses.
func (e *Engine) LoadGeometry(faces []geom.PolygonFace, nodes []bvh.Node) error {
	e.numPolygons = len(faces)
	if len(faces) == 0 {
		return nil
	}

	faceData := make([]byte, 0, len(faces)*32)
	for _, f := range faces {
		faceData = append(faceData, vec2Bytes(f.P1)...)
		faceData = append(faceData, vec2Bytes(f.N1)...)
		faceData = append(faceData, vec2Bytes(f.P2)...)
		faceData = append(faceData, vec2Bytes(f.N2)...)
	}
	nodeData := make([]byte, 0, len(nodes)*48)
	for i := range nodes {
		nodeData = append(nodeData, nodes[i].ToBytes()...)
	}

	if err := e.createStorage("PolygonBuffer", compute.PolygonBufferBinding, len(faceData)); err != nil {
		return err
	}
	if err := e.createStorage("PolygonBvhNodeBuffer", compute.PolygonBvhNodeBufferBinding, len(nodeData)); err != nil {
		return err
	}
	e.queue.WriteBuffer(e.buffers[compute.PolygonBufferBinding], 0, faceData)
	e.queue.WriteBuffer(e.buffers[compute.PolygonBvhNodeBufferBinding], 0, nodeData)

	// the polygon buffers were re-created, so their bind group is stale
	e.createBindGroups()
	return nil
}

func (e *Engine) writeParams(bit, readOffset, writeOffset uint32, dt float32) {
	buf := make([]byte, 48)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(e.cfg.MaxParticles))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(e.numPolygons))
	binary.LittleEndian.PutUint32(buf[8:12], bit)
	binary.LittleEndian.PutUint32(buf[12:16], readOffset)
	binary.LittleEndian.PutUint32(buf[16:20], writeOffset)
	binary.LittleEndian.PutUint32(buf[20:24], e.activeCount)
	binary.LittleEndian.PutUint32(buf[24:28], uint32(e.cfg.MaxCandidates))
	binary.LittleEndian.PutUint32(buf[28:32], math.Float32bits(dt))
	binary.LittleEndian.PutUint32(buf[32:36], math.Float32bits(e.cfg.Window.Min.X()))
	binary.LittleEndian.PutUint32(buf[36:40], math.Float32bits(e.cfg.Window.Min.Y()))
	binary.LittleEndian.PutUint32(buf[40:44], math.Float32bits(e.cfg.Window.Max.X()))
	binary.LittleEndian.PutUint32(buf[44:48], math.Float32bits(e.cfg.Window.Max.Y()))
	e.queue.WriteBuffer(e.buffers[compute.UniformsBinding], 0, buf)
}

func (e *Engine) dispatch(pass *wgpu.ComputePassEncoder, entry string, items int) {
	if items <= 0 {
		return
	}
	pass.SetPipeline(e.pipelines[entry])
	pass.SetBindGroup(0, e.binds[entry], nil)
	pass.DispatchWorkgroups(uint32((items+workGroupSize-1)/workGroupSize), 1, 1)
}

func (e *Engine) submit(build func(pass *wgpu.ComputePassEncoder)) error {
	encoder, err := e.device.CreateCommandEncoder(nil)
	if err != nil {
		return errors.Wrap(err, "create command encoder")
	}
	pass := encoder.BeginComputePass(nil)
	build(pass)
	pass.End()
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return errors.Wrap(err, "finish command buffer")
	}
	e.queue.Submit(cmd)
	return nil
}

// SimulateStep advances the pipeline one frame: integrate, sort by Morton
// key, rebuild the BVH, then detect and resolve. Uniform rewrites between
// submissions sequence the per-bit sort passes.
func (e *Engine) SimulateStep(dt float32) error {
	n := e.cfg.MaxParticles
	span := 2 * workGroupSize
	scanGroups := (n + span - 1) / span

	// integrate, refresh the copy half, and generate sort keys
	e.queue.WriteBuffer(e.buffers[compute.ActiveCounterBinding], 0, make([]byte, 4))
	e.writeParams(0, 0, uint32(n), dt)
	err := e.submit(func(pass *wgpu.ComputePassEncoder) {
		e.dispatch(pass, "cs_update_particles", n)
		e.dispatch(pass, "cs_copy_particles", n)
		e.dispatch(pass, "cs_generate_sorting_data", n)
	})
	if err != nil {
		return err
	}

	active, err := e.readActiveCount()
	if err != nil {
		return err
	}
	e.activeCount = active

	// 32 LSB passes, ping-ponging the record halves
	read, write := uint32(0), uint32(n)
	for bit := uint32(0); bit < 32; bit++ {
		e.writeParams(bit, read, write, dt)
		err = e.submit(func(pass *wgpu.ComputePassEncoder) {
			e.dispatch(pass, "cs_scan_stage1", scanGroups*workGroupSize)
			e.dispatch(pass, "cs_scan_stage2", workGroupSize)
			e.dispatch(pass, "cs_scan_stage3", n)
			e.dispatch(pass, "cs_scatter", n)
		})
		if err != nil {
			return err
		}
		read, write = write, read
	}
	e.readOffset = read

	// reorder, disambiguate, build the tree, collide
	e.writeParams(0, read, write, dt)
	l := int(e.activeCount)
	return e.submit(func(pass *wgpu.ComputePassEncoder) {
		e.dispatch(pass, "cs_sort_particles", n)
		e.dispatch(pass, "cs_guarantee_uniqueness", n)
		e.dispatch(pass, "cs_generate_leaf_nodes", l)
		e.dispatch(pass, "cs_init_internal_nodes", maxi(l-1, 0))
		e.dispatch(pass, "cs_generate_binary_radix_tree", maxi(l-1, 0))
		e.dispatch(pass, "cs_merge_bounding_volumes", l)
		e.dispatch(pass, "cs_detect_collisions", l)
		e.dispatch(pass, "cs_resolve_compute", l)
		e.dispatch(pass, "cs_resolve_apply", l)
		e.dispatch(pass, "cs_resolve_polygon_collisions", l)
	})
}

func (e *Engine) readActiveCount() (uint32, error) {
	encoder, err := e.device.CreateCommandEncoder(nil)
	if err != nil {
		return 0, errors.Wrap(err, "create command encoder")
	}
	encoder.CopyBufferToBuffer(e.buffers[compute.ActiveCounterBinding], 0, e.counterReadback, 0, 4)
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return 0, errors.Wrap(err, "finish command buffer")
	}
	e.queue.Submit(cmd)

	data, err := e.mapRead(e.counterReadback, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

// SnapshotParticles copies the live half back to the host. The copy inserts
// its own device wait, so it is safe between frames.
func (e *Engine) SnapshotParticles() ([]collide.Particle, error) {
	n := e.cfg.MaxParticles
	size := uint64(n * collide.ParticleStride)

	encoder, err := e.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, errors.Wrap(err, "create command encoder")
	}
	encoder.CopyBufferToBuffer(e.buffers[compute.ParticleBufferBinding], 0, e.particleReadback, 0, size)
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return nil, errors.Wrap(err, "finish command buffer")
	}
	e.queue.Submit(cmd)

	data, err := e.mapRead(e.particleReadback, size)
	if err != nil {
		return nil, err
	}
	out := make([]collide.Particle, n)
	for i := 0; i < n; i++ {
		out[i] = collide.ParticleFromBytes(data[i*collide.ParticleStride : (i+1)*collide.ParticleStride])
	}
	return out, nil
}

func (e *Engine) mapRead(buf *wgpu.Buffer, size uint64) ([]byte, error) {
	done := false
	failed := false
	buf.MapAsync(wgpu.MapModeRead, 0, size, func(status wgpu.BufferMapAsyncStatus) {
		done = true
		failed = status != wgpu.BufferMapAsyncStatusSuccess
	})
	for !done {
		e.device.Poll(true, nil)
	}
	if failed {
		return nil, errors.New("buffer map failed")
	}
	data := buf.GetMappedRange(0, uint(size))
	out := make([]byte, size)
	copy(out, data)
	buf.Unmap()
	return out, nil
}

// Release frees every device resource the engine owns.
func (e *Engine) Release() {
	for _, bg := range e.binds {
		bg.Release()
	}
	for _, p := range e.pipelines {
		p.Release()
	}
	for _, b := range e.buffers {
		b.Release()
	}
	e.particleReadback.Release()
	e.counterReadback.Release()
}

func vec2Bytes(v mgl32.Vec2) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(v.X()))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(v.Y()))
	return buf
}

func maxi(a, b int) int {
	if a > b {
		return a
	}
	return b
}
