package listing

import (
	"errors"
	"testing"
)

func TestDecodeSearchPage(t *testing.T) {
	body := []byte(`{
		"success": true,
		"data": {
			"ads": [
				{
					"adid": "2145678901",
					"title": "Trekkingrad 28 Zoll",
					"price": "240",
					"location": {"city": "Berlin", "state": "Berlin"},
					"images": ["https://img.example.test/1.jpg", "https://img.example.test/2.jpg"],
					"upload_date": "2026-08-28"
				},
				{
					"adid": 2145678902,
					"title": "Kinderfahrrad",
					"price": 0
				}
			]
		}
	}`)

	got, err := DecodeSearchPage(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}

	first := got[0]
	if first.ID != "2145678901" {
		t.Errorf("ID = %q, want 2145678901", first.ID)
	}
	if first.Price != "€ 240" {
		t.Errorf("Price = %q, want € 240", first.Price)
	}
	if first.Location != "Berlin, Berlin" {
		t.Errorf("Location = %q, want Berlin, Berlin", first.Location)
	}
	if first.URL != "https://www.kleinanzeigen.de/s-anzeige/2145678901" {
		t.Errorf("URL = %q", first.URL)
	}
	if first.Thumbnail != "https://img.example.test/1.jpg" {
		t.Errorf("Thumbnail = %q, want first image", first.Thumbnail)
	}

	second := got[1]
	if second.ID != "2145678902" {
		t.Errorf("numeric adid mapped to %q, want 2145678902", second.ID)
	}
	if second.Price != "Auf Anfrage" {
		t.Errorf("zero price mapped to %q, want Auf Anfrage", second.Price)
	}
	if second.Thumbnail != "" {
		t.Errorf("missing images mapped to thumbnail %q, want empty string", second.Thumbnail)
	}
	if second.Location != "" {
		t.Errorf("missing location mapped to %q, want empty string", second.Location)
	}
}

func TestDecodeSearchPage_NonNumericPrice(t *testing.T) {
	body := []byte(`{"success": true, "data": {"ads": [{"adid": "1", "title": "x", "price": "VB"}]}}`)

	_, err := DecodeSearchPage(body)
	var merr *MappingError
	if !errors.As(err, &merr) {
		t.Fatalf("err = %v, want *MappingError", err)
	}
}

func TestDecodeSearchPage_UnsuccessfulEnvelope(t *testing.T) {
	_, err := DecodeSearchPage([]byte(`{"success": false, "data": {"ads": []}}`))
	var merr *MappingError
	if !errors.As(err, &merr) {
		t.Fatalf("err = %v, want *MappingError", err)
	}
}

func TestDecodeSearchPage_MalformedBody(t *testing.T) {
	_, err := DecodeSearchPage([]byte(`<html>not json</html>`))
	var merr *MappingError
	if !errors.As(err, &merr) {
		t.Fatalf("err = %v, want *MappingError", err)
	}
}

func TestDecodeDetail(t *testing.T) {
	body := []byte(`{
		"success": true,
		"data": {
			"adid": "2145678901",
			"title": "Trekkingrad 28 Zoll",
			"price": "240",
			"description": "Gut erhaltenes Trekkingrad, wenig gefahren.",
			"location": {"city": "Berlin", "state": "Berlin"},
			"seller": {"name": "Max"},
			"shipping": true,
			"upload_date": "2026-08-28",
			"images": ["https://img.example.test/1.jpg"]
		}
	}`)

	got, err := DecodeDetail(body, "2145678901")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Seller != "Max" {
		t.Errorf("Seller = %q, want Max", got.Seller)
	}
	if got.Shipping != "Versand möglich" {
		t.Errorf("Shipping = %q, want Versand möglich", got.Shipping)
	}
	if got.Description == "" {
		t.Error("Description is empty")
	}
	if len(got.Images) != 1 {
		t.Errorf("Images = %v, want one entry", got.Images)
	}
}

func TestDecodeDetail_FallbackID(t *testing.T) {
	body := []byte(`{"success": true, "data": {"title": "no id here"}}`)

	got, err := DecodeDetail(body, "987")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "987" {
		t.Errorf("ID = %q, want fallback 987", got.ID)
	}
	if got.URL != "https://www.kleinanzeigen.de/s-anzeige/987" {
		t.Errorf("URL = %q, want fallback-derived URL", got.URL)
	}
}

func TestDecodeDetail_NotFound(t *testing.T) {
	for _, body := range []string{
		`{"success": false}`,
		`{"success": true, "data": null}`,
	} {
		_, err := DecodeDetail([]byte(body), "1")
		var merr *MappingError
		if !errors.As(err, &merr) {
			t.Errorf("body %s: err = %v, want *MappingError", body, err)
		}
	}
}

func TestShippingText(t *testing.T) {
	boolp := func(v bool) *bool { return &v }

	if got := shippingText(nil); got != "" {
		t.Errorf("shippingText(nil) = %q, want empty", got)
	}
	if got := shippingText(boolp(true)); got != "Versand möglich" {
		t.Errorf("shippingText(true) = %q", got)
	}
	if got := shippingText(boolp(false)); got != "Nur Abholung" {
		t.Errorf("shippingText(false) = %q", got)
	}
}

func TestDecodeCategories(t *testing.T) {
	body := []byte(`{"success": true, "categories": [{"id": 161, "name": "Fahrräder"}, {"id": 27, "name": "Auto"}]}`)

	got, err := DecodeCategories(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0].ID != 161 || got[0].Name != "Fahrräder" {
		t.Errorf("categories = %+v", got)
	}
}

func TestDecodeLocations(t *testing.T) {
	body := []byte(`{"success": true, "data": [{"id": "1628", "city": "Berlin", "state": "Berlin", "zip": "10178", "latitude": 52.52, "longitude": 13.41}]}`)

	got, err := DecodeLocations(body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Zip != "10178" {
		t.Errorf("locations = %+v", got)
	}
}
