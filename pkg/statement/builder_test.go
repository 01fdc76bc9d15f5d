package statement

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestBuilder_ToStatement(t *testing.T) {
	tests := []struct {
		name      string
		build     func() *Builder
		wantQuery string
		wantKeys  []string
	}{
		{
			name: "full statement",
			build: func() *Builder {
				return NewBuilder().
					Where("WHERE entityId = :entityId and type = :type").
					OrderBy("id ASC").
					WithBindVariable("type", Enum("WORKFLOW_APPROVAL_REQUEST")).
					WithBindVariable("entityId", Integer(42)).
					Limit(500).
					Offset(0)
			},
			wantQuery: "WHERE entityId = :entityId and type = :type ORDER BY id ASC LIMIT 500 OFFSET 0",
			wantKeys:  []string{"entityId", "type"},
		},
		{
			name: "order by keyword stripped",
			build: func() *Builder {
				return NewBuilder().OrderBy("ORDER BY name DESC")
			},
			wantQuery: "ORDER BY name DESC",
		},
		{
			name: "window removed",
			build: func() *Builder {
				return NewBuilder().
					Where("status = :status").
					WithBindVariable(":status", String("ACTIVE")).
					Limit(10).
					Offset(20).
					RemoveLimitAndOffset()
			},
			wantQuery: "WHERE status = :status",
			wantKeys:  []string{"status"},
		},
		{
			name:      "empty",
			build:     NewBuilder,
			wantQuery: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, err := tt.build().ToStatement()
			if err != nil {
				t.Fatalf("ToStatement() error = %v", err)
			}
			if stmt.Query != tt.wantQuery {
				t.Errorf("Query = %q, want %q", stmt.Query, tt.wantQuery)
			}

			var keys []string
			for _, kv := range stmt.Values {
				keys = append(keys, kv.Key)
			}
			if !reflect.DeepEqual(keys, tt.wantKeys) {
				t.Errorf("keys = %v, want %v", keys, tt.wantKeys)
			}
		})
	}
}

func TestBuilder_Validate(t *testing.T) {
	tests := []struct {
		name    string
		builder *Builder
		wantErr error
	}{
		{
			name:    "unbound variable",
			builder: NewBuilder().Where("id = :id and name = :name").WithBindVariable("id", Integer(1)),
			wantErr: ErrUnboundVariable,
		},
		{
			name:    "zero value bound",
			builder: NewBuilder().Where("id = :id").WithBindVariable("id", Value{}),
			wantErr: ErrInvalidValue,
		},
		{
			name:    "limit too large",
			builder: NewBuilder().Limit(MaxPageLimit + 1),
			wantErr: ErrLimitTooLarge,
		},
		{
			name:    "placeholder inside literal ignored",
			builder: NewBuilder().Where("name = 'a:b' and id = :id").WithBindVariable("id", Integer(1)),
		},
		{
			name:    "extra binding allowed",
			builder: NewBuilder().Where("id = 1").WithBindVariable("unused", String("x")),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.builder.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBuilder_Offset(t *testing.T) {
	b := NewBuilder()
	if b.GetOffset() != 0 {
		t.Fatalf("initial offset = %d, want 0", b.GetOffset())
	}
	if b.HasWindow() {
		t.Error("new builder should have no window")
	}

	b.IncreaseOffsetBy(10).IncreaseOffsetBy(10)
	if b.GetOffset() != 20 {
		t.Errorf("offset = %d, want 20", b.GetOffset())
	}

	b.RemoveLimitAndOffset()
	if b.HasWindow() {
		t.Error("window should be removed")
	}
}

func TestBuilder_Clone(t *testing.T) {
	orig := NewBuilder().Where("id = :id").WithBindVariable("id", Integer(1)).Limit(5).Offset(5)
	c := orig.Clone()

	c.IncreaseOffsetBy(5).WithBindVariable("id", Integer(2))

	if orig.GetOffset() != 5 {
		t.Errorf("original offset changed to %d", orig.GetOffset())
	}
	stmt, _ := orig.ToStatement()
	if stmt.Values[0].Value.String() != "1" {
		t.Errorf("original binding changed to %s", stmt.Values[0].Value)
	}
}

func TestBuilder_ZeroValue(t *testing.T) {
	var b Builder
	b.Where("id = :id").WithBindVariable("id", Integer(3)).Limit(20)

	stmt, err := b.ToStatement()
	if err != nil {
		t.Fatalf("ToStatement() error = %v", err)
	}
	if stmt.Query != "WHERE id = :id LIMIT 20" {
		t.Errorf("Query = %q", stmt.Query)
	}
	if len(stmt.Values) != 1 || stmt.Values[0].Key != "id" {
		t.Errorf("Values = %+v, want one value for id", stmt.Values)
	}

	var empty Builder
	if _, err := empty.Clone().ToStatement(); err != nil {
		t.Errorf("empty ToStatement() error = %v", err)
	}
}

func TestBuilder_GetLimit(t *testing.T) {
	b := NewBuilder()
	if _, ok := b.GetLimit(); ok {
		t.Error("GetLimit() reported a limit on a new builder")
	}

	b.Limit(SuggestedPageLimit).Offset(1000)
	if n, ok := b.GetLimit(); !ok || n != SuggestedPageLimit {
		t.Errorf("GetLimit() = %d, %v, want %d, true", n, ok, SuggestedPageLimit)
	}

	b.RemoveLimitAndOffset()
	if _, ok := b.GetLimit(); ok || b.HasWindow() {
		t.Error("RemoveLimitAndOffset() left a window")
	}
}

func TestPlaceholders(t *testing.T) {
	got := Placeholders("a = :a and b = :b or a2 = :a and c = ':c'")
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Placeholders() = %v, want %v", got, want)
	}
}

func TestValue_JSON(t *testing.T) {
	day := time.Date(2015, 5, 1, 13, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value Value
		want  string
	}{
		{"text", String("abc"), `{"type":"TextValue","value":"abc"}`},
		{"number", Integer(7), `{"type":"NumberValue","value":7}`},
		{"boolean", Boolean(true), `{"type":"BooleanValue","value":true}`},
		{"date", Date(day), `{"type":"DateValue","value":"2015-05-01"}`},
		{"enum", Enum("PROPOSAL"), `{"type":"EnumValue","value":"PROPOSAL"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.value)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("Marshal() = %s, want %s", data, tt.want)
			}

			var back Value
			if err := json.Unmarshal(data, &back); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if back.Type() != tt.value.Type() || back.String() != tt.value.String() {
				t.Errorf("round trip = %v (%s), want %v (%s)", back, back.Type(), tt.value, tt.value.Type())
			}
		})
	}
}

func TestValue_MarshalInvalid(t *testing.T) {
	if _, err := json.Marshal(Value{}); err == nil {
		t.Error("expected error marshalling zero Value")
	}
}
