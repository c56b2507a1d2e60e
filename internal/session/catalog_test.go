package session

import "testing"

func TestLookupModel(t *testing.T) {
	info, ok := LookupModel("intfloat/multilingual-e5-large")
	if !ok || info.Quality != "best" || info.Size != "~2.2GB" {
		t.Errorf("LookupModel = %+v, %v", info, ok)
	}

	info, ok = LookupModel("custom/model")
	if ok || info.Size != "?" {
		t.Errorf("unknown model = %+v, %v", info, ok)
	}
}
