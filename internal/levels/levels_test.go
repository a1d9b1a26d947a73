package levels

import "testing"

func TestCalculateBootstrap(t *testing.T) {
	for _, score := range []int{0, -1, -100} {
		level, scoreNext, scoreLeft := Calculate(score)
		if level != 1 || scoreNext != 1 || scoreLeft != 1 {
			t.Fatalf("Calculate(%d) = (%d, %d, %d), want (1, 1, 1)", score, level, scoreNext, scoreLeft)
		}
	}
}

func TestCalculateFirstLevels(t *testing.T) {
	// threshold(2) = ceil(0.5*8 + 1.5*4 + 3.5*2) = 17
	// threshold(3) = ceil(0.5*27 + 1.5*9 + 3.5*3) = 38
	cases := []struct {
		score                      int
		level, scoreNext, scoreLeft int
	}{
		{1, 2, 17, 17},
		{10, 2, 17, 8},
		{17, 2, 17, 1},
		{18, 3, 38, 38},
		{55, 3, 38, 1},
		{56, 4, 70, 70},
	}
	for _, tc := range cases {
		level, scoreNext, scoreLeft := Calculate(tc.score)
		if level != tc.level || scoreNext != tc.scoreNext || scoreLeft != tc.scoreLeft {
			t.Fatalf("Calculate(%d) = (%d, %d, %d), want (%d, %d, %d)",
				tc.score, level, scoreNext, scoreLeft, tc.level, tc.scoreNext, tc.scoreLeft)
		}
	}
}

// Round-trip law: adding exactly scoreLeft points lands on the next level
// with a full width remaining.
func TestCalculateRoundTrip(t *testing.T) {
	for score := 0; score <= 5000; score++ {
		level, _, scoreLeft := Calculate(score)
		nextLevel, nextWidth, nextLeft := Calculate(score + scoreLeft)
		if nextLevel != level+1 {
			t.Fatalf("score %d: level %d + scoreLeft %d gave level %d, want %d",
				score, level, scoreLeft, nextLevel, level+1)
		}
		if nextLeft != nextWidth {
			t.Fatalf("score %d: expected a full level width after level-up, got left %d of %d",
				score, nextLeft, nextWidth)
		}
	}
}

func TestCalculateMonotonic(t *testing.T) {
	prev := 0
	for score := 0; score <= 5000; score++ {
		level, _, _ := Calculate(score)
		if level < prev {
			t.Fatalf("level decreased at score %d: %d -> %d", score, prev, level)
		}
		prev = level
	}
}
