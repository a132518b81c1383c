package domain

import "testing"

func validRequest() CreateDraftRequest {
	return CreateDraftRequest{
		BatchID:  "batch-1",
		OfferID:  "offer-1",
		CopyText: "Big discount today",
		Channels: []Channel{ChannelTelegram},
		Priority: PriorityNormal,
	}
}

func TestCreateDraftRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CreateDraftRequest)
		wantErr error
	}{
		{"valid", func(r *CreateDraftRequest) {}, nil},
		{"missing batch", func(r *CreateDraftRequest) { r.BatchID = "" }, ErrInvalidBatch},
		{"missing offer", func(r *CreateDraftRequest) { r.OfferID = "" }, ErrInvalidOffer},
		{"empty copy", func(r *CreateDraftRequest) { r.CopyText = "" }, ErrInvalidCopy},
		{"copy too long", func(r *CreateDraftRequest) {
			r.CopyText = string(make([]byte, 4097))
		}, ErrInvalidCopy},
		{"no channels", func(r *CreateDraftRequest) { r.Channels = nil }, ErrNoChannels},
		{"unknown channel", func(r *CreateDraftRequest) {
			r.Channels = []Channel{"fax"}
		}, ErrInvalidChannel},
		{"unknown variant key", func(r *CreateDraftRequest) {
			r.CopyVariants = map[Channel]string{"fax": "x"}
		}, ErrInvalidChannel},
		{"bad priority", func(r *CreateDraftRequest) { r.Priority = "urgent" }, ErrInvalidPriority},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			if err := req.Validate(); err != tc.wantErr {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestDraft_CopyFor(t *testing.T) {
	d := &Draft{
		CopyText: "generic",
		CopyVariants: map[Channel]string{
			ChannelTwitter: "short and punchy",
		},
	}
	if got := d.CopyFor(ChannelTwitter); got != "short and punchy" {
		t.Fatalf("CopyFor(twitter) = %q", got)
	}
	if got := d.CopyFor(ChannelTelegram); got != "generic" {
		t.Fatalf("CopyFor(telegram) = %q, want fallback", got)
	}
}

func TestDraftStatus_Terminal(t *testing.T) {
	for status, want := range map[DraftStatus]bool{
		DraftPending:    false,
		DraftApproved:   false,
		DraftDispatched: false,
		DraftRejected:   true,
		DraftError:      true,
	} {
		if got := status.Terminal(); got != want {
			t.Fatalf("Terminal(%s) = %v, want %v", status, got, want)
		}
	}
}
