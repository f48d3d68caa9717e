package models

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

// gormTag extracts the gorm tag from a struct field.
func gormTag(t *testing.T, typ reflect.Type, fieldName string) string {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	return f.Tag.Get("gorm")
}

// assertGormTag checks that a struct field's gorm tag contains the expected value.
func assertGormTag(t *testing.T, typ reflect.Type, fieldName, expected string) {
	t.Helper()
	tag := gormTag(t, typ, fieldName)
	if !strings.Contains(tag, expected) {
		t.Errorf("%s.%s gorm tag = %q, want to contain %q", typ.Name(), fieldName, tag, expected)
	}
}

// assertFieldType checks that a struct field has the expected Go type.
func assertFieldType(t *testing.T, typ reflect.Type, fieldName, expectedType string) {
	t.Helper()
	f, ok := typ.FieldByName(fieldName)
	if !ok {
		t.Fatalf("%s.%s: field not found", typ.Name(), fieldName)
	}
	got := f.Type.String()
	if got != expectedType {
		t.Errorf("%s.%s type = %q, want %q", typ.Name(), fieldName, got, expectedType)
	}
}

func TestMediaRequest_Fields(t *testing.T) {
	typ := reflect.TypeOf(MediaRequest{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "ID", "size:36")
	assertGormTag(t, typ, "MediaType", "index:idx_tmdb_type")
	assertGormTag(t, typ, "TmdbID", "index:idx_tmdb_type")
	assertGormTag(t, typ, "RadarrID", "index")
	assertGormTag(t, typ, "SonarrID", "index")
	assertGormTag(t, typ, "RequestedBy", "index")
	assertGormTag(t, typ, "Status", "default:pending")

	assertFieldType(t, typ, "Year", "*int")
	assertFieldType(t, typ, "TvdbID", "*int")
	assertFieldType(t, typ, "RadarrID", "*int")
	assertFieldType(t, typ, "SonarrID", "*int")
	assertFieldType(t, typ, "TmdbID", "int")
	assertFieldType(t, typ, "RequestedAt", "time.Time")
}

func TestUser_Fields(t *testing.T) {
	typ := reflect.TypeOf(User{})

	assertGormTag(t, typ, "ID", "primaryKey")
	assertGormTag(t, typ, "Identities", "serializer:json")
	assertGormTag(t, typ, "Counters", "embedded")
	assertFieldType(t, typ, "Identities", "map[string]string")
}

func TestRequestStatus_Terminal(t *testing.T) {
	tests := []struct {
		status   RequestStatus
		terminal bool
	}{
		{StatusPending, false},
		{StatusDownloading, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
		if !tt.status.Valid() {
			t.Errorf("%s.Valid() = false", tt.status)
		}
	}
	if RequestStatus("archived").Valid() {
		t.Error("unknown status should not be valid")
	}
}

func TestMediaRequest_ExternalID(t *testing.T) {
	r := MediaRequest{RadarrID: IntPtr(7)}
	if got := r.ExternalID(SystemRadarr); got == nil || *got != 7 {
		t.Errorf("ExternalID(radarr) = %v, want 7", got)
	}
	if got := r.ExternalID(SystemSonarr); got != nil {
		t.Errorf("ExternalID(sonarr) = %v, want nil", *got)
	}
}

func TestMediaRequest_CloneDoesNotAlias(t *testing.T) {
	orig := &MediaRequest{
		ID:          "abc",
		Year:        IntPtr(2010),
		RadarrID:    IntPtr(3),
		RequestedAt: time.Now(),
	}
	c := orig.Clone()
	*c.Year = 1999
	*c.RadarrID = 9
	if *orig.Year != 2010 || *orig.RadarrID != 3 {
		t.Errorf("clone aliased original: year=%d radarr=%d", *orig.Year, *orig.RadarrID)
	}
	if (*MediaRequest)(nil).Clone() != nil {
		t.Error("nil clone should be nil")
	}
}

func TestUser_CloneDoesNotAlias(t *testing.T) {
	u := &User{ID: "u1", Identities: map[string]string{"sms": "+1555"}}
	c := u.Clone()
	c.Identities["sms"] = "+1999"
	if u.Identities["sms"] != "+1555" {
		t.Errorf("clone aliased identities: %q", u.Identities["sms"])
	}
}

func TestMediaType_Label(t *testing.T) {
	if MediaMovie.Label() != "movie" || MediaTVShow.Label() != "TV show" {
		t.Errorf("labels = %q, %q", MediaMovie.Label(), MediaTVShow.Label())
	}
	if MediaType("x").Valid() {
		t.Error("unknown media type should not be valid")
	}
}

func TestMediaType_System(t *testing.T) {
	if got := MediaMovie.System(); got != SystemRadarr {
		t.Errorf("movie system = %q, want radarr", got)
	}
	if got := MediaTVShow.System(); got != SystemSonarr {
		t.Errorf("tv system = %q, want sonarr", got)
	}
}
