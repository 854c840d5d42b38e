package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// newTestRegistry creates a registry owned by "owner-a" and fails the test on error.
func newTestRegistry(t *testing.T, name string) *Registry {
	t.Helper()
	reg, err := NewRegistry(name, "owner-a")
	if err != nil {
		t.Fatalf("NewRegistry(%q) error = %v", name, err)
	}
	return reg
}

func assertTriple(t *testing.T, reg *Registry) {
	t.Helper()
	if err := reg.CheckInvariants(); err != nil {
		t.Fatalf("CheckInvariants() error = %v", err)
	}
}

func TestNewRegistry(t *testing.T) {
	tests := []struct {
		name    string
		regName string
		wantErr error
	}{
		{"empty name", "", nil},
		{"short name", "Registro 1", nil},
		{"exactly 64", strings.Repeat("r", MaxNameLength), nil},
		{"65 is too long", strings.Repeat("r", MaxNameLength+1), ErrNameTooLong},
		{"far too long", strings.Repeat("r", 500), ErrNameTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := NewRegistry(tt.regName, "owner-a")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NewRegistry() error = %v, want %v", err, tt.wantErr)
				}
				if reg != nil {
					t.Errorf("NewRegistry() returned a record on failure")
				}
				return
			}
			if err != nil {
				t.Fatalf("NewRegistry() error = %v", err)
			}
			if reg.DeviceCount != 0 {
				t.Errorf("DeviceCount = %d, want 0", reg.DeviceCount)
			}
			if reg.OwnerID != "owner-a" {
				t.Errorf("OwnerID = %q, want %q", reg.OwnerID, "owner-a")
			}
			if len(reg.Devices) != 0 || len(reg.DeviceIDs) != 0 {
				t.Errorf("new registry is not empty: %+v", reg)
			}
		})
	}
}

func TestRegistry_AddDevice(t *testing.T) {
	t.Run("keeps count, handles and devices in step", func(t *testing.T) {
		reg := newTestRegistry(t, "R")
		for i := 0; i < 10; i++ {
			name := fmt.Sprintf("sensor-%02d", i)
			if err := reg.AddDevice("id-"+name, name, "desc", nil, nil); err != nil {
				t.Fatalf("AddDevice(%q) error = %v", name, err)
			}
			assertTriple(t, reg)
			if reg.DeviceCount != uint64(i+1) {
				t.Errorf("DeviceCount = %d, want %d", reg.DeviceCount, i+1)
			}
		}
	})

	t.Run("stores the supplied fields", func(t *testing.T) {
		reg := newTestRegistry(t, "R")
		meta := []Pair{P("marca", "Solana"), P("modelo", "2024")}
		data := []Pair{P("estado", "activo"), P("bateria", "80%")}

		if err := reg.AddDevice("dev-1", "Sensor", "Sensor de Oficina", meta, data); err != nil {
			t.Fatalf("AddDevice() error = %v", err)
		}

		got, err := reg.Device("Sensor")
		if err != nil {
			t.Fatalf("Device() error = %v", err)
		}
		want := &Device{Name: "Sensor", Description: "Sensor de Oficina", Metadata: meta, Data: data}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Device() mismatch (-want +got):\n%s", diff)
		}

		id, err := reg.DeviceID("Sensor")
		if err != nil || id != "dev-1" {
			t.Errorf("DeviceID() = %q, %v; want dev-1", id, err)
		}
	})

	t.Run("duplicate name is rejected without change", func(t *testing.T) {
		reg := newTestRegistry(t, "R")
		if err := reg.AddDevice("id-1", "D1", "first", []Pair{P("a", "1")}, nil); err != nil {
			t.Fatalf("AddDevice() error = %v", err)
		}
		before := reg.DeepCopy()

		err := reg.AddDevice("id-2", "D1", "second", nil, nil)
		if !errors.Is(err, ErrDeviceExists) {
			t.Fatalf("AddDevice(duplicate) error = %v, want ErrDeviceExists", err)
		}
		if errors.Is(err, ErrDeviceNotFound) {
			t.Errorf("collision must not be reported as ErrDeviceNotFound")
		}
		if diff := cmp.Diff(before, reg, cmpopts.IgnoreUnexported(Registry{})); diff != "" {
			t.Errorf("registry changed after failed add (-before +after):\n%s", diff)
		}
	})

	t.Run("caller slices are not aliased", func(t *testing.T) {
		reg := newTestRegistry(t, "R")
		meta := []Pair{P("k", "v")}
		if err := reg.AddDevice("id-1", "D1", "", meta, nil); err != nil {
			t.Fatalf("AddDevice() error = %v", err)
		}
		meta[0].Value = "mutated"

		got, _ := reg.Device("D1")
		if got.Metadata[0].Value != "v" {
			t.Errorf("stored metadata follows caller slice: %v", got.Metadata)
		}
	})
}

func TestRegistry_SetDeviceMetadata(t *testing.T) {
	reg := newTestRegistry(t, "R")
	if err := reg.AddDevice("id-1", "D1", "", []Pair{P("old", "x")}, nil); err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}

	t.Run("full replace keeps duplicates", func(t *testing.T) {
		want := []Pair{P("k", "v1"), P("k", "v2")}
		if err := reg.SetDeviceMetadata("D1", want); err != nil {
			t.Fatalf("SetDeviceMetadata() error = %v", err)
		}
		got, _ := reg.Device("D1")
		if diff := cmp.Diff(want, got.Metadata); diff != "" {
			t.Errorf("Metadata mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("missing device leaves registry unchanged", func(t *testing.T) {
		before := reg.DeepCopy()
		err := reg.SetDeviceMetadata("nope", []Pair{P("a", "b")})
		if !errors.Is(err, ErrDeviceNotFound) {
			t.Fatalf("SetDeviceMetadata() error = %v, want ErrDeviceNotFound", err)
		}
		if diff := cmp.Diff(before, reg, cmpopts.IgnoreUnexported(Registry{})); diff != "" {
			t.Errorf("registry changed (-before +after):\n%s", diff)
		}
	})

	t.Run("empty replacement clears", func(t *testing.T) {
		if err := reg.SetDeviceMetadata("D1", []Pair{}); err != nil {
			t.Fatalf("SetDeviceMetadata() error = %v", err)
		}
		got, _ := reg.Device("D1")
		if len(got.Metadata) != 0 {
			t.Errorf("Metadata = %v, want empty", got.Metadata)
		}
	})
}

func TestRegistry_SetDeviceData(t *testing.T) {
	reg := newTestRegistry(t, "R")
	if err := reg.AddDevice("id-1", "D1", "", nil, []Pair{P("estado", "activo")}); err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}

	want := []Pair{P("bateria", "80%"), P("bateria", "79%")}
	if err := reg.SetDeviceData("D1", want); err != nil {
		t.Fatalf("SetDeviceData() error = %v", err)
	}
	got, _ := reg.Device("D1")
	if diff := cmp.Diff(want, got.Data); diff != "" {
		t.Errorf("Data mismatch (-want +got):\n%s", diff)
	}
	if len(got.Metadata) != 0 {
		t.Errorf("SetDeviceData touched metadata: %v", got.Metadata)
	}

	before := reg.DeepCopy()
	if err := reg.SetDeviceData("missing", nil); !errors.Is(err, ErrDeviceNotFound) {
		t.Fatalf("SetDeviceData(missing) error = %v, want ErrDeviceNotFound", err)
	}
	if diff := cmp.Diff(before, reg, cmpopts.IgnoreUnexported(Registry{})); diff != "" {
		t.Errorf("registry changed (-before +after):\n%s", diff)
	}
}

func TestRegistry_DeepCopy(t *testing.T) {
	reg := newTestRegistry(t, "R")
	if err := reg.AddDevice("id-1", "D1", "", []Pair{P("a", "1")}, nil); err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}

	cpy := reg.DeepCopy()
	if err := cpy.AddDevice("id-2", "D2", "", nil, nil); err != nil {
		t.Fatalf("AddDevice() on copy error = %v", err)
	}
	if err := cpy.AppendDeviceMetadata("D1", "b", "2"); err != nil {
		t.Fatalf("AppendDeviceMetadata() on copy error = %v", err)
	}

	if reg.DeviceCount != 1 || reg.HasDevice("D2") {
		t.Errorf("original gained a device through its copy")
	}
	got, _ := reg.Device("D1")
	if len(got.Metadata) != 1 {
		t.Errorf("original metadata = %v, want one pair", got.Metadata)
	}
}

// TestRegistry_DeepCopyReadsDoNotWrite checks that lookups on a copy use
// the index built by DeepCopy instead of rebuilding it, so a shared
// snapshot can be read from several goroutines.
func TestRegistry_DeepCopyReadsDoNotWrite(t *testing.T) {
	// Built without NewRegistry, as the store's repository does, so the
	// source has no index.
	reg := &Registry{
		Name:        "R",
		OwnerID:     "A",
		DeviceCount: 2,
		DeviceIDs:   []string{"i1", "i2"},
		Devices: []NamedDevice{
			{Name: "D1", Device: Device{Name: "D1"}},
			{Name: "D2", Device: Device{Name: "D2"}},
		},
	}

	snap := reg.DeepCopy()
	if snap.index == nil || len(snap.index) != 2 {
		t.Fatalf("copy index = %v, want two entries", snap.index)
	}
	before := snap.index

	var wg sync.WaitGroup
	for n := 0; n < 8; n++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !snap.HasDevice("D2") {
				t.Error("HasDevice(D2) = false on copy")
			}
			if _, err := snap.Device("D1"); err != nil {
				t.Errorf("Device(D1) error = %v", err)
			}
		}()
	}
	wg.Wait()

	if fmt.Sprintf("%p", snap.index) != fmt.Sprintf("%p", before) {
		t.Error("reading the copy rebuilt its index")
	}
}

func TestRegistry_CheckInvariants(t *testing.T) {
	reg := newTestRegistry(t, "R")
	if err := reg.AddDevice("id-1", "D1", "", nil, nil); err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}

	reg.DeviceCount = 5
	var invErr *InvariantError
	if err := reg.CheckInvariants(); !errors.As(err, &invErr) {
		t.Fatalf("CheckInvariants() error = %v, want *InvariantError", err)
	}
	if invErr.Count != 5 || invErr.Devices != 1 {
		t.Errorf("InvariantError = %+v", invErr)
	}
}

func TestRegistry_CheckInvariantsDuplicateName(t *testing.T) {
	reg := &Registry{
		Name:        "R",
		DeviceCount: 2,
		DeviceIDs:   []string{"id-1", "id-2"},
		Devices: []NamedDevice{
			{Name: "D1", Device: Device{Name: "D1"}},
			{Name: "D1", Device: Device{Name: "D1"}},
		},
	}
	if err := reg.CheckInvariants(); !errors.Is(err, ErrDeviceExists) {
		t.Fatalf("CheckInvariants() error = %v, want ErrDeviceExists", err)
	}
}

func TestRegistry_JSONRoundTrip(t *testing.T) {
	reg := newTestRegistry(t, "R")
	if err := reg.AddDevice("id-1", "Sensor", "Sensor de Oficina",
		[]Pair{P("marca", "Solana")}, []Pair{P("estado", "activo")}); err != nil {
		t.Fatalf("AddDevice() error = %v", err)
	}

	b, err := json.Marshal(reg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(b), `"metadata":[["marca","Solana"]]`) {
		t.Errorf("pairs not encoded as arrays: %s", b)
	}

	var decoded Registry
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	// The index is rebuilt lazily after decoding.
	if !decoded.HasDevice("Sensor") {
		t.Errorf("decoded registry lost device lookup")
	}
	assertTriple(t, &decoded)
}

func TestPair_UnmarshalJSON_Invalid(t *testing.T) {
	for _, in := range []string{`["only-key"]`, `["a","b","c"]`, `{"key":"a"}`} {
		var p Pair
		if err := json.Unmarshal([]byte(in), &p); err == nil {
			t.Errorf("Unmarshal(%s) expected error", in)
		}
	}
}
