package booking

import (
	"context"

	"rentguru/internal/app/commands"
	"rentguru/internal/app/dto"
	"rentguru/internal/app/uow"
	"rentguru/internal/domain/chat"
	"rentguru/internal/domain/incentive"
)

type (
	AccountResult      = dto.AccountView
	ConversationResult = dto.ConversationView
)

type ApplyPromoHandler struct{ *Engine }

// Handle redeems a cash promo into the caller's bonus balance, once per user.
// A partner code also links the account to that partner for referral payouts.
func (h ApplyPromoHandler) Handle(ctx context.Context, cmd ApplyPromoCommand) (*AccountResult, error) {
	var out AccountResult
	err := h.within(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		now := h.now()
		code := incentive.NormalizeCode(cmd.Code)
		promo, err := unit.Promos().ByCode(ctx, code)
		if err != nil {
			return err
		}
		if err := promo.Usable(incentive.PromoCash, now); err != nil {
			return err
		}
		if err := unit.PromoUsages().Claim(ctx, code, cmd.Actor.UserID, now); err != nil {
			return err
		}
		acct, err := h.account(ctx, unit, cmd.Actor.UserID)
		if err != nil {
			return err
		}
		if acct.ReferredBy == "" && promo.PartnerID != "" {
			acct.ReferredBy = promo.PartnerID
			acct.UpdatedAt = now
			if err := unit.Accounts().Save(ctx, acct); err != nil {
				return err
			}
		}
		if err := unit.Accounts().AdjustBonus(ctx, cmd.Actor.UserID, promo.Cash); err != nil {
			return err
		}
		if acct, err = unit.Accounts().ByUser(ctx, cmd.Actor.UserID); err != nil {
			return err
		}
		h.log().InfoContext(ctx, "cash promo applied", "user_id", cmd.Actor.UserID, "code", code)
		out = dto.AccountView{UserID: acct.UserID, Bonus: dto.Money(acct.Bonus)}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type OpenSupportHandler struct{ *Engine }

func (h OpenSupportHandler) Handle(ctx context.Context, cmd OpenSupportCommand) (*ConversationResult, error) {
	var out ConversationResult
	err := h.within(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		conv, err := chat.NewSupportConversation(chat.ConversationID(h.newID()), cmd.Actor.UserID, cmd.Topic, cmd.Description, h.now())
		if err != nil {
			return err
		}
		if err := unit.Conversations().Save(ctx, conv); err != nil {
			return err
		}
		out = dto.Conversation(conv)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

var (
	_ commands.Handler[ApplyPromoCommand, *AccountResult]       = ApplyPromoHandler{}
	_ commands.Handler[OpenSupportCommand, *ConversationResult] = OpenSupportHandler{}
)
