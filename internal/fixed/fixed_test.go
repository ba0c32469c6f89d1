package fixed

import "testing"

// TestFromInt verifies integer round-trips through fixed-point
func TestFromInt(t *testing.T) {
	tests := []struct {
		name string
		in   int
	}{
		{"zero", 0},
		{"positive", 7},
		{"negative", -3},
		{"large", 4096},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FromInt(tt.in).Int(); got != tt.in {
				t.Errorf("FromInt(%d).Int() = %d", tt.in, got)
			}
		})
	}
}

// TestMul verifies multiplication rounds toward zero
func TestMul(t *testing.T) {
	tests := []struct {
		name string
		a, b Fixed32
		want Fixed32
	}{
		{"one times one", One, One, One},
		{"two times three", FromInt(2), FromInt(3), FromInt(6)},
		{"half times half", One / 2, One / 2, One / 4},
		{"negative", FromInt(-2), FromInt(3), FromInt(-6)},
		{"truncates toward zero", FromRaw(3), FromRaw(3), 0}, // 9/256 truncates
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Mul(tt.b); got != tt.want {
				t.Errorf("%d.Mul(%d) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

// TestDiv verifies division
func TestDiv(t *testing.T) {
	if got := FromInt(6).Div(FromInt(2)); got != FromInt(3) {
		t.Errorf("6/2 = %d, want %d", got, FromInt(3))
	}
	if got := FromInt(3).Div(FromInt(2)); got != One+One/2 {
		t.Errorf("3/2 = %d, want %d", got, One+One/2)
	}
}

// TestSqrt verifies the integer Newton square root on exact squares
func TestSqrt(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{0, 0},
		{1, 1},
		{4, 2},
		{9, 3},
		{100, 10},
	}

	for _, tt := range tests {
		if got := FromInt(tt.in).Sqrt(); got != FromInt(tt.want) {
			t.Errorf("Sqrt(%d) = raw %d, want raw %d", tt.in, got, FromInt(tt.want))
		}
	}
}

// TestDistance verifies euclidean distance on pythagorean triples
func TestDistance(t *testing.T) {
	a := V2FromInt(0, 0)
	b := V2FromInt(3, 4)
	if got := a.DistanceTo(b); got != FromInt(5) {
		t.Errorf("distance (0,0)-(3,4) = %d, want %d", got, FromInt(5))
	}
}

// TestStepToward verifies step clamping and consumption accounting
func TestStepToward(t *testing.T) {
	from := V2FromInt(0, 0)
	to := V2FromInt(10, 0)

	// Step shorter than the distance: moves exactly amount
	pos, used := from.StepToward(to, FromInt(4))
	if used != FromInt(4) {
		t.Errorf("used = %d, want %d", used, FromInt(4))
	}
	if pos.X != FromInt(4) || pos.Y != 0 {
		t.Errorf("pos = %+v, want (4, 0)", pos)
	}

	// Step longer than the distance: arrives, consumes only the distance
	pos, used = from.StepToward(to, FromInt(100))
	if pos != to {
		t.Errorf("pos = %+v, want target", pos)
	}
	if used != FromInt(10) {
		t.Errorf("used = %d, want %d", used, FromInt(10))
	}
}

// TestDeterminism verifies identical sequences produce identical results.
// Fixed-point math must be pure integer ops; this guards against accidental
// float creep in the hot path.
func TestDeterminism(t *testing.T) {
	run := func() Fixed32 {
		acc := One
		for i := 1; i < 50; i++ {
			acc = acc.Mul(FromRaw(int32(256 + i))).Div(FromRaw(int32(255 + i)))
			acc = acc + FromRaw(int32(i))
		}
		return acc
	}

	first := run()
	for i := 0; i < 10; i++ {
		if got := run(); got != first {
			t.Fatalf("run %d produced %d, first run produced %d", i, got, first)
		}
	}
}
