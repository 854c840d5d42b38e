package registry

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestContract_CreateRegistry(t *testing.T) {
	c := NewContract()

	reg, err := c.CreateRegistry("R", "owner-a")
	if err != nil {
		t.Fatalf("CreateRegistry() error = %v", err)
	}
	if reg.DeviceCount != 0 {
		t.Errorf("DeviceCount = %d, want 0", reg.DeviceCount)
	}
	if !c.RegistryExists("R") {
		t.Errorf("RegistryExists(R) = false after create")
	}

	t.Run("too long allocates nothing", func(t *testing.T) {
		_, err := c.CreateRegistry(strings.Repeat("x", 65), "owner-a")
		if !errors.Is(err, ErrNameTooLong) {
			t.Fatalf("CreateRegistry() error = %v, want ErrNameTooLong", err)
		}
		if c.Len() != 1 {
			t.Errorf("Len() = %d, want 1", c.Len())
		}
	})

	t.Run("duplicate name rejected", func(t *testing.T) {
		_, err := c.CreateRegistry("R", "owner-b")
		if !errors.Is(err, ErrRegistryExists) {
			t.Fatalf("CreateRegistry(duplicate) error = %v, want ErrRegistryExists", err)
		}
		got, _ := c.Registry("R")
		if got.OwnerID != "owner-a" {
			t.Errorf("owner changed to %q", got.OwnerID)
		}
	})
}

func TestContract_Registries_Order(t *testing.T) {
	c := NewContract()
	names := []string{"gamma", "alpha", "beta"}
	for _, n := range names {
		if _, err := c.CreateRegistry(n, "owner-a"); err != nil {
			t.Fatalf("CreateRegistry(%q) error = %v", n, err)
		}
	}

	var got []string
	for _, r := range c.Registries() {
		got = append(got, r.Name)
	}
	if diff := cmp.Diff(names, got); diff != "" {
		t.Errorf("Registries() order mismatch (-want +got):\n%s", diff)
	}
}

func TestContract_ZeroValueInsert(t *testing.T) {
	var c Contract
	reg, _ := NewRegistry("R", "owner-a")
	if err := c.Insert(reg); err != nil {
		t.Fatalf("Insert() on zero Contract error = %v", err)
	}
	if !c.RegistryExists("R") {
		t.Errorf("RegistryExists(R) = false")
	}
}

func TestContract_ValidationHelpers(t *testing.T) {
	c := NewContract()
	reg, _ := c.CreateRegistry("R", "owner-a")
	if err := reg.AddDevice("id-1", "D1", "", nil, nil); err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}

	if !c.RegistryExists("R") || c.RegistryExists("r") || c.RegistryExists("missing") {
		t.Errorf("RegistryExists() must be an exact match")
	}
	if !c.IsOwner("R", "owner-a") {
		t.Errorf("IsOwner(R, owner-a) = false")
	}
	if c.IsOwner("R", "owner-b") {
		t.Errorf("IsOwner(R, owner-b) = true")
	}
	if c.IsOwner("missing", "owner-a") {
		t.Errorf("IsOwner(missing) = true, want false")
	}
	if !c.DeviceExists(reg, "D1") || c.DeviceExists(reg, "D2") {
		t.Errorf("DeviceExists() mismatch")
	}
}

func TestContract_SetDeviceMetadataParam(t *testing.T) {
	setup := func(t *testing.T) (*Contract, *Registry) {
		t.Helper()
		c := NewContract()
		reg, err := c.CreateRegistry("R", "owner-a")
		if err != nil {
			t.Fatalf("CreateRegistry() error = %v", err)
		}
		if err := reg.AddDevice("id-1", "D1", "", []Pair{P("x", "1")}, nil); err != nil {
			t.Fatalf("AddDevice() error = %v", err)
		}
		return c, reg
	}

	t.Run("owner appends in order", func(t *testing.T) {
		c, reg := setup(t)
		if err := c.SetDeviceMetadataParam("R", "D1", "fw", "1.2", "owner-a"); err != nil {
			t.Fatalf("SetDeviceMetadataParam() error = %v", err)
		}
		got, _ := reg.Device("D1")
		if diff := cmp.Diff([]Pair{P("x", "1"), P("fw", "1.2")}, got.Metadata); diff != "" {
			t.Errorf("after one call (-want +got):\n%s", diff)
		}

		if err := c.SetDeviceMetadataParam("R", "D1", "fw", "1.3", "owner-a"); err != nil {
			t.Fatalf("SetDeviceMetadataParam() error = %v", err)
		}
		got, _ = reg.Device("D1")
		want := []Pair{P("x", "1"), P("fw", "1.2"), P("fw", "1.3")}
		if diff := cmp.Diff(want, got.Metadata); diff != "" {
			t.Errorf("after two calls (-want +got):\n%s", diff)
		}
	})

	errCases := []struct {
		name     string
		registry string
		device   string
		caller   Identity
		wantErr  error
	}{
		{"unknown registry", "nope", "D1", "owner-a", ErrRegistryNotFound},
		{"non-owner", "R", "D1", "owner-b", ErrUnauthorizedAccess},
		{"non-owner checked before device", "R", "missing", "owner-b", ErrUnauthorizedAccess},
		{"unknown device", "R", "missing", "owner-a", ErrDeviceNotFound},
	}
	for _, tt := range errCases {
		t.Run(tt.name, func(t *testing.T) {
			c, reg := setup(t)
			before := reg.DeepCopy()

			err := c.SetDeviceMetadataParam(tt.registry, tt.device, "fw", "9", tt.caller)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("SetDeviceMetadataParam() error = %v, want %v", err, tt.wantErr)
			}
			after, _ := reg.Device("D1")
			was, _ := before.Device("D1")
			if diff := cmp.Diff(was.Metadata, after.Metadata); diff != "" {
				t.Errorf("metadata changed on failure (-before +after):\n%s", diff)
			}
		})
	}
}

func TestContract_DeepCopyAndReplace(t *testing.T) {
	c := NewContract()
	if _, err := c.CreateRegistry("R", "owner-a"); err != nil {
		t.Fatalf("CreateRegistry() error = %v", err)
	}

	next := c.DeepCopy()
	reg, _ := next.Registry("R")
	if err := reg.AddDevice("id-1", "D1", "", nil, nil); err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}

	orig, _ := c.Registry("R")
	if orig.HasDevice("D1") {
		t.Fatalf("DeepCopy shares registry records")
	}

	if err := c.Replace(reg); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	orig, _ = c.Registry("R")
	if !orig.HasDevice("D1") {
		t.Errorf("Replace() did not publish the new record")
	}

	ghost, _ := NewRegistry("ghost", "owner-a")
	if err := c.Replace(ghost); !errors.Is(err, ErrRegistryNotFound) {
		t.Errorf("Replace(unknown) error = %v, want ErrRegistryNotFound", err)
	}
}

// TestEndToEnd walks the create → add → set → param flow for an owner and an
// outsider.
func TestEndToEnd(t *testing.T) {
	const ownerA, outsiderB Identity = "A", "B"
	c := NewContract()

	reg, err := c.CreateRegistry("R", ownerA)
	if err != nil {
		t.Fatalf("CreateRegistry() error = %v", err)
	}
	if err := reg.AddDevice("id-d1", "D1", "", nil, nil); err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}
	if err := reg.SetDeviceMetadata("D1", []Pair{P("x", "1")}); err != nil {
		t.Fatalf("SetDeviceMetadata() error = %v", err)
	}

	dev, err := reg.Device("D1")
	if err != nil {
		t.Fatalf("Device() error = %v", err)
	}
	if diff := cmp.Diff([]Pair{P("x", "1")}, dev.Metadata); diff != "" {
		t.Errorf("Metadata mismatch (-want +got):\n%s", diff)
	}

	err = c.SetDeviceMetadataParam("R", "D1", "fw", "1.2", outsiderB)
	if !errors.Is(err, ErrUnauthorizedAccess) {
		t.Fatalf("outsider SetDeviceMetadataParam() error = %v, want ErrUnauthorizedAccess", err)
	}
}
