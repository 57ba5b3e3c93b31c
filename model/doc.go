// Package model provides the data model shared by the tag extraction
// pipeline.
//
// The types follow the life of a tag through the pipeline:
//
//   - [RawDetection] - one OCR hit from one pass over a region
//   - [CandidateTag] - a deduplicated cluster of raw detections believed
//     to represent one physical tag
//   - [ClassifiedTag] - a candidate that matched a classification rule,
//     with its resolved context and provenance
//   - [Drawing] - the page scope that owns all of the above
//
// # Geometry
//
// Geometric primitives support overlap and clustering calculations:
//
//   - [BBox] - bounding box with intersection, union, and overlap ratio
//   - [Point] - 2D point with distance calculation
//
// Unlike PDF user space, page space here is image space: the origin is
// the top-left corner and Y grows downward, because pages arrive as
// rendered raster images.
package model
