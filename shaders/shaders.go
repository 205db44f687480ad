// Package shaders embeds the WGSL sources for the collision pipeline's
// device kernels. The buffer binding slots in these sources mirror the
// constants in the compute package; the gpu engine relies on that.
package shaders

import (
	_ "embed"
)

//go:embed update_particles.wgsl
var UpdateParticlesWGSL string

//go:embed copy_particles.wgsl
var CopyParticlesWGSL string

//go:embed generate_sorting_data.wgsl
var GenerateSortingDataWGSL string

//go:embed prefix_scan.wgsl
var PrefixScanWGSL string

//go:embed radix_scatter.wgsl
var RadixScatterWGSL string

//go:embed sort_particles.wgsl
var SortParticlesWGSL string

//go:embed guarantee_uniqueness.wgsl
var GuaranteeUniquenessWGSL string

//go:embed build_bvh.wgsl
var BuildBvhWGSL string

//go:embed detect_collisions.wgsl
var DetectCollisionsWGSL string

//go:embed resolve_collisions.wgsl
var ResolveCollisionsWGSL string

//go:embed resolve_polygon_collisions.wgsl
var ResolvePolygonCollisionsWGSL string
