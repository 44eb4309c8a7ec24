// Package camera provides frame sources, the per-device session lock, and
// udev hotplug monitoring for capture devices.
//
// A Source pushes frames into a Sink (the session engine) at its own pace.
// Sinks never block, so a source does not need to know whether a frame was
// processed or dropped by backpressure.
package camera
