/*
Copyright 2023 The GoStor Authors All rights reserved.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package virtio holds the transport primitives a virtio device backend
// is driven through.
package virtio

// DeviceTypeSCSI is the virtio device id of a SCSI host.
const DeviceTypeSCSI uint32 = 8

const VIRTIO_F_VERSION_1 uint64 = 1 << 32

// Queue is the driver facing side of a virtqueue. Implementations are not
// required to be safe for concurrent use.
type Queue interface {
	// Pop returns the next available chain, if any.
	Pop() (*DescriptorChain, bool)
	// AddUsed returns chain to the driver with length bytes written.
	AddUsed(chain *DescriptorChain, length uint32)
	// TriggerInterrupt notifies the driver of used chains and reports
	// whether an interrupt was sent.
	TriggerInterrupt(irq Interrupt) bool
	// Event receives one value per driver kick. It is closed when the queue
	// goes away.
	Event() <-chan struct{}
}

// Interrupt delivers used buffer notifications to the driver.
type Interrupt interface {
	SignalUsedQueue(vector uint16)
	// ResampleEvent fires when a level triggered interrupt must be
	// re-asserted. A nil channel means the interrupt is edge triggered.
	ResampleEvent() <-chan struct{}
	DoInterruptResample()
}
