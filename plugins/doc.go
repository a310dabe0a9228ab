// Package plugins hosts the domain modules (agent, property, shop). Each
// subpackage implements core.Module and contributes listener registrations,
// section schemas and rules; nothing here is runtime code.
//
// Plugins talk to the engine through internal/core and pkg/domain only.
// Storage, lock, blob and telemetry adapters are picked by the host binary.
// The subpackage plugins/testhelper builds in-memory services for plugin
// tests and must not be imported by production plugin code.
package plugins
