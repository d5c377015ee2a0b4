package httpx

import (
	"context"
	"net/http"
	"runtime"

	"github.com/google/uuid"
	"github.com/mehmetcc/storefront/internal/storage"
)

type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformMac     Platform = "mac"
	PlatformWindows Platform = "win"
	PlatformLinux   Platform = "linux"
	PlatformWeb     Platform = "web"
)

func CurrentPlatform() Platform {
	switch runtime.GOOS {
	case "darwin":
		return PlatformMac
	case "windows":
		return PlatformWindows
	case "linux":
		return PlatformLinux
	case "android":
		return PlatformAndroid
	case "ios":
		return PlatformIOS
	}
	return PlatformWeb
}

const (
	HeaderDeviceID   = "X-Device-Id"
	HeaderPlatform   = "X-Client-Platform"
	HeaderAppVersion = "X-App-Version"
)

type DeviceMeta struct {
	DeviceID   string
	Platform   Platform
	AppVersion string
}

// LoadDeviceMeta returns the persisted device id, minting and storing a new
// one on first use.
func LoadDeviceMeta(ctx context.Context, s storage.Storage, appVersion string) (DeviceMeta, error) {
	id, ok, err := s.Get(ctx, storage.KeyDeviceID)
	if err != nil {
		return DeviceMeta{}, err
	}
	if !ok || id == "" {
		id = uuid.NewString()
		if err := s.Set(ctx, storage.KeyDeviceID, id); err != nil {
			return DeviceMeta{}, err
		}
	}
	return DeviceMeta{DeviceID: id, Platform: CurrentPlatform(), AppVersion: appVersion}, nil
}

type deviceTransport struct {
	base http.RoundTripper
	meta DeviceMeta
}

// NewDeviceTransport stamps every request with the device headers.
func NewDeviceTransport(base http.RoundTripper, meta DeviceMeta) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &deviceTransport{base: base, meta: meta}
}

func (d *deviceTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	r.Header.Set(HeaderDeviceID, d.meta.DeviceID)
	r.Header.Set(HeaderPlatform, string(d.meta.Platform))
	if d.meta.AppVersion != "" {
		r.Header.Set(HeaderAppVersion, d.meta.AppVersion)
	}
	return d.base.RoundTrip(r)
}
