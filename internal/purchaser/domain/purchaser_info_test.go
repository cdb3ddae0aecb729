package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParsePurchaserInfo(t *testing.T) {
	body := []byte(`{
		"subscriber": {
			"subscriptions": {
				"pro.monthly": {"expires_date": "2100-01-01T00:00:00Z"},
				"legacy.yearly": {"expires_date": "2001-01-01T00:00:00Z"},
				"lifetime.sub": {"expires_date": null}
			},
			"other_purchases": {
				"coins.100": {"purchase_date": "2020-06-01T00:00:00Z"}
			}
		}
	}`)

	info, err := ParsePurchaserInfo(body)
	require.NoError(t, err)

	// Expired subscriptions stay purchased but are not active; a nil
	// expiration never expires.
	require.Equal(t, []string{"lifetime.sub", "pro.monthly"}, info.ActiveSubscriptions)
	require.Equal(t, []string{"coins.100", "legacy.yearly", "lifetime.sub", "pro.monthly"}, info.PurchasedProducts)

	require.Nil(t, info.ExpirationDateFor("lifetime.sub"))
	expires := info.ExpirationDateFor("pro.monthly")
	require.NotNil(t, expires)
	require.Equal(t, 2100, expires.Year())
	require.Nil(t, info.ExpirationDateFor("coins.100"))
}

func TestParsePurchaserInfoEmptySubscriber(t *testing.T) {
	info, err := ParsePurchaserInfo([]byte(`{"subscriber": {}}`))
	require.NoError(t, err)
	require.Empty(t, info.ActiveSubscriptions)
	require.Empty(t, info.PurchasedProducts)
}

func TestParsePurchaserInfoMalformed(t *testing.T) {
	_, err := ParsePurchaserInfo([]byte(`{"subscriber": [`))
	require.Error(t, err)
}

func TestLatestExpirationDate(t *testing.T) {
	early := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	late := time.Date(2040, 1, 1, 0, 0, 0, 0, time.UTC)

	info := &PurchaserInfo{
		ExpirationDates: map[string]*time.Time{
			"a": &early,
			"b": &late,
			"c": nil,
		},
	}
	latest := info.LatestExpirationDate()
	require.NotNil(t, latest)
	require.True(t, latest.Equal(late))

	none := &PurchaserInfo{ExpirationDates: map[string]*time.Time{"a": nil}}
	require.Nil(t, none.LatestExpirationDate())
}

func TestPurchaserInfoEqual(t *testing.T) {
	expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	sameInstant := expires.In(time.FixedZone("plus1", 3600))
	other := time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC)

	base := &PurchaserInfo{
		ActiveSubscriptions: []string{"pro"},
		ExpirationDates:     map[string]*time.Time{"pro": &expires},
		PurchasedProducts:   []string{"pro"},
	}

	t.Run("identical state", func(t *testing.T) {
		require.True(t, base.Equal(&PurchaserInfo{
			ActiveSubscriptions: []string{"pro"},
			ExpirationDates:     map[string]*time.Time{"pro": &sameInstant},
			PurchasedProducts:   []string{"pro"},
		}))
	})

	t.Run("different expiration", func(t *testing.T) {
		require.False(t, base.Equal(&PurchaserInfo{
			ActiveSubscriptions: []string{"pro"},
			ExpirationDates:     map[string]*time.Time{"pro": &other},
			PurchasedProducts:   []string{"pro"},
		}))
	})

	t.Run("different subscriptions", func(t *testing.T) {
		require.False(t, base.Equal(&PurchaserInfo{
			ActiveSubscriptions: []string{"gold"},
			ExpirationDates:     map[string]*time.Time{"pro": &expires},
			PurchasedProducts:   []string{"pro"},
		}))
	})

	t.Run("nil comparisons", func(t *testing.T) {
		var nilInfo *PurchaserInfo
		require.True(t, nilInfo.Equal(nil))
		require.False(t, base.Equal(nil))
		require.False(t, nilInfo.Equal(base))
	})
}

func TestParseEntitlements(t *testing.T) {
	body := []byte(`{
		"premium": {
			"offerings": {
				"monthly": {"active_product_identifier": "pro.monthly"},
				"yearly": {"active_product_identifier": "pro.yearly"}
			}
		},
		"pro_widgets": {"offerings": {}}
	}`)

	entitlements, err := ParseEntitlements(body)
	require.NoError(t, err)
	require.Len(t, entitlements, 2)
	require.Equal(t, "pro.monthly", entitlements["premium"].Offerings["monthly"].ActiveProductIdentifier)
	require.Nil(t, entitlements["premium"].Offerings["monthly"].Product)
	require.Empty(t, entitlements["pro_widgets"].Offerings)
}

func TestParseEntitlementsMalformed(t *testing.T) {
	_, err := ParseEntitlements([]byte(`[]`))
	require.Error(t, err)
}
