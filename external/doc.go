// Package external enforces the lock discipline of host-owned images.
//
// The renderer side wraps an imageapi.ExternalImageHandler in a Handoff.
// Every successful Lock returns a LockedImage token; its content can be read
// only until the token is unlocked, and each token unlocks exactly once.
//
// The host side can use BufferHandler, which lends plain byte buffers, and
// TextureOutputs, which receives pipeline output in gpucontext textures.
package external
