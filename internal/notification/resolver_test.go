package notification

import (
	"context"
	"errors"
	"testing"

	"bidding-marketplace/internal/biddingerrors"
	model "bidding-marketplace/internal/models"
	"bidding-marketplace/internal/repository"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"
)

func TestEmailResolver_Resolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		bid       model.Bid
		mockSetup func(m *repository.MockMarketplaceDB)
		want      string
	}{
		{
			name:      "embedded_email_wins",
			bid:       model.Bid{BidderID: "u1", BidderEmail: "embedded@example.com"},
			mockSetup: func(m *repository.MockMarketplaceDB) {},
			want:      "embedded@example.com",
		},
		{
			name: "profile_lookup",
			bid:  model.Bid{BidderID: "u1"},
			mockSetup: func(m *repository.MockMarketplaceDB) {
				m.EXPECT().GetUser(gomock.Any(), "u1").Return(model.User{UserID: "u1", Email: "u1@example.com"}, nil)
			},
			want: "u1@example.com",
		},
		{
			name: "missing_profile",
			bid:  model.Bid{BidderID: "u2"},
			mockSetup: func(m *repository.MockMarketplaceDB) {
				m.EXPECT().GetUser(gomock.Any(), "u2").Return(model.User{}, biddingerrors.ErrUserNotFound)
			},
			want: TombstoneEmail,
		},
		{
			name: "profile_without_email",
			bid:  model.Bid{BidderID: "u3"},
			mockSetup: func(m *repository.MockMarketplaceDB) {
				m.EXPECT().GetUser(gomock.Any(), "u3").Return(model.User{UserID: "u3"}, nil)
			},
			want: TombstoneEmail,
		},
		{
			name: "store_failure",
			bid:  model.Bid{BidderID: "u4"},
			mockSetup: func(m *repository.MockMarketplaceDB) {
				m.EXPECT().GetUser(gomock.Any(), "u4").Return(model.User{}, errors.New("store unavailable"))
			},
			want: TombstoneEmail,
		},
		{
			name:      "no_bidder",
			bid:       model.Bid{},
			mockSetup: func(m *repository.MockMarketplaceDB) {},
			want:      TombstoneEmail,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			profiles := repository.NewMockMarketplaceDB(ctrl)
			tc.mockSetup(profiles)

			resolver, err := NewEmailResolver(profiles, 0)
			require.NoError(t, err)
			require.Equal(t, tc.want, resolver.Resolve(context.Background(), tc.bid))
		})
	}
}

func TestEmailResolver_CachesLookups(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	profiles := repository.NewMockMarketplaceDB(ctrl)
	profiles.EXPECT().GetUser(gomock.Any(), "u1").Return(model.User{UserID: "u1", Email: "u1@example.com"}, nil).Times(1)
	profiles.EXPECT().GetUser(gomock.Any(), "ghost").Return(model.User{}, biddingerrors.ErrUserNotFound).Times(2)

	resolver, err := NewEmailResolver(profiles, 8)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.Equal(t, "u1@example.com", resolver.Resolve(context.Background(), model.Bid{BidderID: "u1"}))
	}
	// misses are not cached
	for i := 0; i < 2; i++ {
		require.Equal(t, TombstoneEmail, resolver.Resolve(context.Background(), model.Bid{BidderID: "ghost"}))
	}
}
