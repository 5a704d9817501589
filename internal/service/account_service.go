package service

import (
	"context"
	stderrors "errors"

	"github.com/sirupsen/logrus"

	"pageinbox/internal/errors"
	"pageinbox/internal/i18n"
	"pageinbox/internal/metrics"
	"pageinbox/internal/models"
	"pageinbox/internal/privacy"
	"pageinbox/internal/validation"
)

// AccountService is the account registry: connected pages per user, their
// upsert on reconnection and the cascade on disconnect.
type AccountService struct {
	store  Store
	graph  Graph
	tr     *i18n.Translator
	logger *logrus.Logger
}

func NewAccountService(store Store, graph Graph, tr *i18n.Translator, logger *logrus.Logger) *AccountService {
	return &AccountService{store: store, graph: graph, tr: tr, logger: logger}
}

// UpsertAccounts inserts or updates each external account for userID and
// returns how many were stored. Failed items are logged and skipped.
func (s *AccountService) UpsertAccounts(ctx context.Context, userID, networkKind string, accounts []models.ExternalAccount) (int, error) {
	stored := 0
	for _, ext := range accounts {
		if err := ctx.Err(); err != nil {
			return stored, err
		}

		externalID := validation.Sanitize(ext.ExternalID)
		fields := logrus.Fields{
			LogFieldUserID:     privacy.MaskUserID(userID),
			LogFieldExternalID: privacy.MaskExternalID(externalID),
		}
		if err := validation.ValidateExternalID(externalID); err != nil {
			s.logger.WithFields(fields).WithError(err).Warn("Skipping account upsert: invalid external id")
			continue
		}

		_, err := s.store.UpsertAccount(ctx, &models.Account{
			UserID:      userID,
			NetworkKind: networkKind,
			ExternalID:  externalID,
			DisplayName: validation.Sanitize(ext.DisplayName),
			AccessToken: ext.AccessToken,
		})
		if err != nil {
			if stderrors.Is(err, models.ErrAccountTaken) {
				s.logger.WithFields(fields).Warn("Skipping account upsert: connected by another user")
			} else {
				s.logger.WithFields(fields).WithError(err).Error("Failed to upsert account")
			}
			continue
		}
		stored++
	}

	metrics.AddToCounter(metrics.AccountsUpserted, float64(stored), map[string]string{"network": networkKind}, "Accounts inserted or updated")
	return stored, nil
}

// ListAccounts returns every account of userID. No accounts is reported as a
// NotFound error so callers can tell it apart from a storage failure.
func (s *AccountService) ListAccounts(ctx context.Context, userID string) ([]*models.Account, error) {
	accounts, err := s.store.ListAccounts(ctx, userID)
	if err != nil {
		return nil, storageError(s.tr, "list accounts", err)
	}
	if len(accounts) == 0 {
		return nil, errors.NotFound("accounts", userID, s.tr.T(i18n.KeyNoAccountsFound))
	}
	return accounts, nil
}

// DeleteAccount unsubscribes the page from the app (best effort) and then
// runs the cascade. It reports whether the account row was removed.
func (s *AccountService) DeleteAccount(ctx context.Context, userID, accountID string) (bool, error) {
	id, err := validation.ValidateID(accountID, "account_id", s.tr.T(i18n.KeyInvalidAccountID))
	if err != nil {
		return false, err
	}

	account, err := s.store.GetAccount(ctx, userID, id)
	if err != nil {
		return false, storageError(s.tr, "get account", err)
	}
	if account == nil {
		return false, errors.NotFound("account", id, s.tr.T(i18n.KeyAccountNotFound))
	}

	if err := s.graph.UnsubscribePage(ctx, account.ExternalID, account.AccessToken); err != nil {
		s.logger.WithFields(logrus.Fields{
			LogFieldAccountID: account.ID,
			LogFieldPageID:    privacy.MaskExternalID(account.ExternalID),
		}).WithError(err).Warn("Failed to unsubscribe page, deleting anyway")
	}

	return s.CascadeDeleteAccount(ctx, userID, account.ID)
}

// CascadeDeleteAccount deletes the account's messages, then its threads, then
// the account itself. The steps are independent deletes; a failure stops
// the sequence and leaves the earlier steps applied.
func (s *AccountService) CascadeDeleteAccount(ctx context.Context, userID, accountID string) (bool, error) {
	messages, err := s.store.DeleteMessagesByAccount(ctx, accountID)
	if err != nil {
		return false, storageError(s.tr, "delete messages", err)
	}

	threads, err := s.store.DeleteThreadsByAccount(ctx, accountID)
	if err != nil {
		return false, storageError(s.tr, "delete threads", err)
	}

	deleted, err := s.store.DeleteAccount(ctx, userID, accountID)
	if err != nil {
		return false, storageError(s.tr, "delete account", err)
	}

	s.logger.WithFields(logrus.Fields{
		LogFieldUserID:    privacy.MaskUserID(userID),
		LogFieldAccountID: accountID,
		"threads_deleted":  threads,
		"messages_deleted": messages,
		"account_deleted":  deleted,
	}).Info("Account cascade delete completed")

	if deleted {
		metrics.IncrementCounter(metrics.AccountsDeleted, nil, "Accounts deleted")
	}
	return deleted, nil
}

// ConnectAccounts exchanges an OAuth code for a user token, subscribes each
// of the user's pages to the app and stores the subscribed pages.
func (s *AccountService) ConnectAccounts(ctx context.Context, userID, code string) (int, error) {
	code = validation.Sanitize(code)
	if code == "" {
		return 0, errors.Validation("code", s.tr.T(i18n.KeyInvalidCode))
	}

	userToken, err := s.graph.ExchangeCode(ctx, code)
	if err != nil {
		return 0, upstreamError(s.tr, err)
	}

	pages, err := s.graph.ListPages(ctx, userToken)
	if err != nil {
		return 0, upstreamError(s.tr, err)
	}
	if len(pages) == 0 {
		return 0, errors.NotFound("pages", userID, s.tr.T(i18n.KeyNoPagesFound))
	}

	subscribed := make([]models.ExternalAccount, 0, len(pages))
	for _, p := range pages {
		if err := s.graph.SubscribePage(ctx, p.ExternalID, p.AccessToken); err != nil {
			s.logger.WithField(LogFieldPageID, privacy.MaskExternalID(p.ExternalID)).
				WithError(err).Warn("Skipping page: subscription failed")
			continue
		}
		subscribed = append(subscribed, p)
	}

	count, err := s.UpsertAccounts(ctx, userID, models.NetworkFacebookPages, subscribed)
	if err != nil {
		return count, err
	}

	s.logger.WithFields(logrus.Fields{
		LogFieldUserID: privacy.MaskUserID(userID),
		LogFieldCount:  count,
		"pages_found":  len(pages),
	}).Info("Accounts connected")
	return count, nil
}
