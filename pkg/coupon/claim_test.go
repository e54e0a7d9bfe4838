package coupon_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/seatshare/pkg/coupon"
)

const businessRules = `
rules:
  - scope: streaming
    choose_category: [Video, music]
  - scope: partner-launch
    claim: product
  - scope: gaming
    unavailable: catalog paused
  - scope: legacy_bundle
    removed: true
`

func TestLoadClaimRules(t *testing.T) {
	t.Parallel()

	rules, err := coupon.LoadClaimRules(strings.NewReader(businessRules))
	require.NoError(t, err)

	assert.Equal(t, coupon.ChooseCategory{Options: []string{"video", "music"}}, rules.Resolve("Streaming"))
	assert.Equal(t, coupon.Claim{Spec: coupon.ClaimSpec{Match: coupon.MatchProduct}}, rules.Resolve("partner_launch"))
	assert.Equal(t, coupon.Unavailable{Reason: "catalog paused"}, rules.Resolve("gaming"))
	assert.Equal(t, coupon.Removed{}, rules.Resolve("legacy-bundle"))
	assert.Equal(t, coupon.Claim{Spec: coupon.ClaimSpec{Match: coupon.MatchAny}}, rules.Resolve("sitewide"))
	assert.IsType(t, coupon.Unavailable{}, rules.Resolve("nope"))
	assert.Contains(t, rules.Scopes(), "streaming")
}

func TestLoadClaimRules_Empty(t *testing.T) {
	t.Parallel()

	rules, err := coupon.LoadClaimRules(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, coupon.DefaultClaimRules().Scopes(), rules.Scopes())
}

func TestLoadClaimRules_Invalid(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"two kinds":     "rules:\n  - scope: x\n    claim: product\n    removed: true\n",
		"no kind":       "rules:\n  - scope: x\n",
		"missing scope": "rules:\n  - claim: product\n",
		"bad match":     "rules:\n  - scope: x\n    claim: everything\n",
		"unknown field": "rules:\n  - scope: x\n    removed: true\n    color: red\n",
		"not yaml":      "rules: [",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := coupon.LoadClaimRules(strings.NewReader(doc))
			assert.ErrorIs(t, err, coupon.ErrInvalidClaimRules)
		})
	}
}

func TestEngine_ChooseCategoryScope(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	rules := coupon.DefaultClaimRules().With("streaming", coupon.ChooseCategory{Options: []string{"video", "music"}})
	e := coupon.NewEngine(coupon.NewMemoryStore(), noHistory{}, coupon.WithClaimRules(rules))
	mustCreate(t, e, coupon.CreateParams{Code: "STREAM", PercentOff: 15, Scope: "streaming", MaxRedemptions: coupon.Unlimited})

	_, err := e.ValidateCouponForOrder(ctx, "STREAM", uuid.New(), spotify, 1000, 1)
	assert.NoError(t, err)

	_, err = e.ValidateCouponForOrder(ctx, "STREAM", uuid.New(), coupon.Target{ProductID: "xbox", Category: "gaming"}, 1000, 1)
	assert.ErrorIs(t, err, coupon.ErrScopeMismatch)
}

func TestEngine_RemovedScopeCannotBeCreated(t *testing.T) {
	t.Parallel()

	rules := coupon.DefaultClaimRules().With("legacy", coupon.Removed{})
	e := coupon.NewEngine(coupon.NewMemoryStore(), noHistory{}, coupon.WithClaimRules(rules))

	_, err := e.CreateCoupon(context.Background(), coupon.CreateParams{Code: "OLD", PercentOff: 10, Scope: "legacy"})
	assert.ErrorIs(t, err, coupon.ErrInvalidParams)
}

func TestNormalizeCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "SUMMER25", coupon.NormalizeCode(" summer-25 "))
	assert.Equal(t, "AB12", coupon.NormalizeCode("a.b_1 2"))
	assert.Empty(t, coupon.NormalizeCode("--"))
	assert.Equal(t, "partner_launch", coupon.NormalizeScope(" Partner-Launch "))
}
