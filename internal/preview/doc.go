// Package preview turns Earth Engine thumbnail bytes into inline previews for MCP
// clients.
//
// A preview is the server-rendered thumbnail, optionally fitted to a maximum size,
// contrast-adjusted and overlaid with a latitude/longitude graticule, returned as
// base64 PNG together with a summary of its dominant colours.
//
// # Coordinate System
//
// Pixel coordinates are 0-based with (0,0) at the top-left corner. Geographic
// bounds are given as west, south, east, north in degrees and are assumed to map
// linearly onto the image (equirectangular), which holds for the EPSG:4326
// thumbnails Earth Engine renders by default.
//
// # Transparency
//
// Masked pixels arrive fully transparent. They are kept transparent in the output
// and ignored by the colour summary.
package preview
