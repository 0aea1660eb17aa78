package printer

import "github.com/michaelrsweet/pappl-sub004/internal/raster"

// Attributes is the read-only snapshot of printer-description attributes
// exposed by Get-Printer-Attributes (spec.md §4.D, §6).
type Attributes struct {
	ID           int
	Name         string
	ResourcePath string
	State        State
	Reasons      []string
	IsDefault    bool
	DeviceURI    string
	ReadyMedia   []string
	Capabilities raster.Capabilities
	ActiveJobs   int
	CompletedJobs int
}

// Snapshot builds an Attributes view under the printer's lock.
func (p *Printer) Snapshot() Attributes {
	p.mu.Lock()
	defer p.mu.Unlock()

	var caps raster.Capabilities
	if p.driver != nil {
		caps = p.driver.Capabilities()
	}

	return Attributes{
		ID:            p.ID,
		Name:          p.Name,
		ResourcePath:  p.ResourcePath,
		State:         p.state,
		Reasons:       p.reasons.Values(),
		IsDefault:     p.isDefault,
		DeviceURI:     p.DeviceURI,
		ReadyMedia:    append([]string(nil), p.ReadyMedia...),
		Capabilities:  caps,
		ActiveJobs:    len(p.active),
		CompletedJobs: len(p.completed),
	}
}
