package gpu

import (
	"bufio"
	"context"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/dushixiang/gleam/pkg/agent/sysutil"
	"github.com/spf13/afero"
)

const drmRoot = "/sys/class/drm"

// drmCard is a primary DRM node such as /sys/class/drm/card0.
type drmCard struct {
	path     string // /sys/class/drm/cardN
	device   string // /sys/class/drm/cardN/device
	vendorID string // e.g. 0x1002
	pciSlot  string // e.g. 0000:03:00.0
}

// scanCards lists primary cards (connector nodes like card1-DP-1 are skipped), sorted by name.
func scanCards(fs afero.Fs) ([]drmCard, error) {
	entries, err := afero.ReadDir(fs, drmRoot)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var cards []drmCard
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "card") || strings.Contains(name, "-") {
			continue
		}
		cardPath := path.Join(drmRoot, name)
		device := path.Join(cardPath, "device")
		vendor, ok := readString(fs, path.Join(device, "vendor"))
		if !ok {
			continue
		}
		cards = append(cards, drmCard{
			path:     cardPath,
			device:   device,
			vendorID: vendor,
			pciSlot:  readPCISlot(fs, device),
		})
	}
	return cards, nil
}

// findHwmon returns the hwmon directory under device whose name matches one of names.
func findHwmon(fs afero.Fs, device string, names ...string) (string, bool) {
	hwmonDir := path.Join(device, "hwmon")
	entries, err := afero.ReadDir(fs, hwmonDir)
	if err != nil {
		return "", false
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		dir := path.Join(hwmonDir, entry.Name())
		name, ok := readString(fs, path.Join(dir, "name"))
		if !ok {
			continue
		}
		for _, want := range names {
			if name == want {
				return dir, true
			}
		}
	}
	return "", false
}

func readPCISlot(fs afero.Fs, device string) string {
	f, err := fs.Open(path.Join(device, "uevent"))
	if err != nil {
		return ""
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if slot, ok := strings.CutPrefix(scanner.Text(), "PCI_SLOT_NAME="); ok {
			return strings.TrimSpace(slot)
		}
	}
	return ""
}

func readString(fs afero.Fs, p string) (string, bool) {
	b, err := afero.ReadFile(fs, p)
	if err != nil {
		return "", false
	}
	s := strings.TrimSpace(string(b))
	return s, s != ""
}

func readUint(fs afero.Fs, p string) (uint64, bool) {
	s, ok := readString(fs, p)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func readInt(fs afero.Fs, p string) (int64, bool) {
	s, ok := readString(fs, p)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func readFloat(fs afero.Fs, p string) (float64, bool) {
	s, ok := readString(fs, p)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// lspciName asks lspci for the marketing name of the device in slot. SDevice is preferred;
// otherwise the bracketed part of Device, otherwise Device as-is.
func lspciName(ctx context.Context, runner sysutil.Runner, slot string) (string, bool) {
	if runner == nil || slot == "" {
		return "", false
	}
	out, err := runner.Run(ctx, "lspci", "-vmm", "-s", slot)
	if err != nil {
		return "", false
	}
	return parseLspciName(out)
}

func parseLspciName(out string) (string, bool) {
	var device, sdevice string
	for _, line := range strings.Split(out, "\n") {
		if v, ok := strings.CutPrefix(line, "SDevice:"); ok {
			sdevice = strings.TrimSpace(v)
		} else if v, ok := strings.CutPrefix(line, "Device:"); ok {
			device = strings.TrimSpace(v)
		}
	}
	if sdevice != "" {
		return sdevice, true
	}
	if device == "" {
		return "", false
	}
	if _, after, ok := strings.Cut(device, "["); ok {
		if inner, _, ok := strings.Cut(after, "]"); ok && strings.TrimSpace(inner) != "" {
			return strings.TrimSpace(inner), true
		}
	}
	return device, true
}

func ptr[T any](v T) *T { return &v }
