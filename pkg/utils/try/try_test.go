package try_test

import (
	"errors"
	"testing"

	"github.com/opst/karfab/pkg/utils/try"
)

type fataler struct {
	fatal  [][]any
	helper uint
}

func (f *fataler) Fatal(args ...any) {
	f.fatal = append(f.fatal, args)
}

func (f *fataler) Helper() {
	f.helper += 1
}

func TestTry(t *testing.T) {
	t.Run("when it does not have error, it passes the value", func(t *testing.T) {
		f := &fataler{}
		testee := try.To(42, nil)

		if actual := testee.OrFatal(f); actual != 42 {
			t.Errorf("OrFatal: (actual, expected) = (%d, %d)", actual, 42)
		}
		if actual := testee.OrDefault(7); actual != 42 {
			t.Errorf("OrDefault: (actual, expected) = (%d, %d)", actual, 42)
		}
		if len(f.fatal) != 0 || f.helper != 0 {
			t.Errorf("fataler is touched: %+v", f)
		}
	})

	t.Run("when it has error, it reports that", func(t *testing.T) {
		f := &fataler{}
		cause := errors.New("fake error")
		testee := try.To(42, cause)

		if actual := testee.OrFatal(f); actual != 0 {
			t.Errorf("OrFatal: (actual, expected) = (%d, %d)", actual, 0)
		}
		if len(f.fatal) != 1 || f.fatal[0][0] != cause {
			t.Errorf("Fatal is not called with the error: %+v", f.fatal)
		}
		if f.helper != 1 {
			t.Errorf("Helper is not called")
		}
		if actual := testee.OrDefault(7); actual != 7 {
			t.Errorf("OrDefault: (actual, expected) = (%d, %d)", actual, 7)
		}
		if _, err := testee.Get(); !errors.Is(err, cause) {
			t.Errorf("Get: unexpected error: %v", err)
		}
	})
}
