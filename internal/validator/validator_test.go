package validator

import "testing"

func TestValidatePacketURLEmptyIsValid(t *testing.T) {
	result := ValidatePacketURL("", "primegov", "springfield")
	if !result.Valid || result.Action != ActionStore {
		t.Fatalf("expected empty URL to store, got %+v", result)
	}
}

func TestValidatePacketURLMatchingHostStores(t *testing.T) {
	result := ValidatePacketURL("https://springfield.primegov.com/packet.pdf", "primegov", "springfield")
	if !result.Valid || result.Action != ActionStore {
		t.Fatalf("expected matching host to store, got %+v", result)
	}
}

func TestValidatePacketURLGranicusAllowsCDNHosts(t *testing.T) {
	result := ValidatePacketURL("https://s3.amazonaws.com/bucket/packet.pdf", "granicus", "springfield")
	if !result.Valid || result.Action != ActionStore {
		t.Fatalf("expected granicus S3 host to store, got %+v", result)
	}
}

func TestValidatePacketURLMismatchRejects(t *testing.T) {
	result := ValidatePacketURL("https://evil.example.com/packet.pdf", "primegov", "springfield")
	if result.Valid || result.Action != ActionReject {
		t.Fatalf("expected mismatched host to reject, got %+v", result)
	}
}

func TestValidatePacketURLProtocolRelative(t *testing.T) {
	result := ValidatePacketURL("//springfield.primegov.com/packet.pdf", "primegov", "springfield")
	if !result.Valid || result.Action != ActionStore {
		t.Fatalf("expected protocol-relative matching host to store, got %+v", result)
	}
}

func TestValidatePacketURLRelativeWarns(t *testing.T) {
	result := ValidatePacketURL("/packets/packet.pdf", "primegov", "springfield")
	if !result.Valid || result.Action != ActionWarn {
		t.Fatalf("expected relative URL to warn, got %+v", result)
	}
}

func TestValidatePacketURLUnknownVendorWarns(t *testing.T) {
	result := ValidatePacketURL("https://somewhere.example.com/packet.pdf", "mystery-vendor", "slug")
	if !result.Valid || result.Action != ActionWarn {
		t.Fatalf("expected unknown vendor to warn not reject, got %+v", result)
	}
}

func TestValidatePacketURLLegistarSlugVariant(t *testing.T) {
	result := ValidatePacketURL("https://columbus.legistar.com/View.ashx?id=1", "legistar", "columbus")
	if !result.Valid || result.Action != ActionStore {
		t.Fatalf("expected legistar slug host to store, got %+v", result)
	}
}
