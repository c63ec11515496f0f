// Package earthengine is a small client for the Google Earth Engine REST API.
//
// Computations are described as expression graphs built from the typed wrappers
// in this package (Image, ImageCollection, FeatureCollection, Geometry, ...) and
// serialized with Serialize into the "values/result" form the API accepts. Nothing
// is computed locally: a graph is a recipe that the server evaluates when it is
// sent to value:compute, maps, thumbnails or image:export.
//
// A graph built in this process is the only live handle to a derived product such
// as a composite. It is not persisted anywhere; callers that cache products keep
// the graph in memory next to serializable metadata.
//
// # Authentication
//
// The client authenticates with a service-account key, given inline (GEE_SA_KEY)
// or as a file path (GEE_SA_KEY_PATH / GOOGLE_APPLICATION_CREDENTIALS). A missing
// or invalid key does not prevent construction; every remote call then returns the
// credential error unchanged so it reaches the MCP caller verbatim.
//
// # Errors
//
// API failures are returned as *APIError with the backend message untouched.
// Nothing is retried.
package earthengine
