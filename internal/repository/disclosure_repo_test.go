package repository

import (
	"testing"

	"dealdesk/internal/domain"
	"dealdesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedDisclosure(t *testing.T, repo *DisclosureRepository, dealID string, investorIDs ...uint) *models.DealDisclosure {
	t.Helper()
	d := &models.DealDisclosure{
		DealID:       dealID,
		DocumentURL:  "https://res.cloudinary.com/demo/raw/upload/doc_abc",
		DocumentType: "subscription_agreement",
		CreatedByID:  99,
	}
	require.NoError(t, repo.Create(d))
	for _, id := range investorIDs {
		require.NoError(t, repo.AddInvestor(&models.DisclosureInvestor{
			DisclosureID: d.ID,
			InvestorID:   id,
			SoftCommit:   domain.SoftCommitCommitted,
			Status:       domain.SignatureSigned,
		}))
	}
	return d
}

func TestDisclosureFindByDealAndInvestor(t *testing.T) {
	repo := NewDisclosureRepository(newTestDB(t))
	d := seedDisclosure(t, repo, "deal-1", 1, 2)

	found, err := repo.FindByDealAndInvestor("deal-1", 1)
	require.NoError(t, err)
	assert.Equal(t, d.ID, found.ID)

	_, err = repo.FindByDealAndInvestor("deal-1", 3)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = repo.FindByDealAndInvestor("deal-2", 1)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDisclosureFindSkipsUnsignedEntry(t *testing.T) {
	repo := NewDisclosureRepository(newTestDB(t))
	d := seedDisclosure(t, repo, "deal-1")

	require.NoError(t, repo.AddInvestor(&models.DisclosureInvestor{
		DisclosureID: d.ID,
		InvestorID:   7,
		SoftCommit:   domain.SoftCommitCommitted,
		Status:       domain.SignatureUnsigned,
	}))

	_, err := repo.FindByDealAndInvestor("deal-1", 7)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	require.NoError(t, repo.UpdateInvestorEntry(d.ID, 7, map[string]interface{}{
		"status": domain.SignatureSigned,
	}))

	found, err := repo.FindByDealAndInvestor("deal-1", 7)
	require.NoError(t, err)
	assert.Equal(t, d.ID, found.ID)
}

func TestDisclosureUpdateInvestorEntry(t *testing.T) {
	repo := NewDisclosureRepository(newTestDB(t))
	d := seedDisclosure(t, repo, "deal-1", 1)

	err := repo.UpdateInvestorEntry(d.ID, 1, map[string]interface{}{
		"status":        domain.SignatureSigned,
		"view_document": true,
	})
	require.NoError(t, err)

	loaded, err := repo.GetByID(d.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Investors, 1)
	assert.Equal(t, domain.SignatureSigned, loaded.Investors[0].Status)
	assert.True(t, loaded.Investors[0].ViewDocument)

	err = repo.UpdateInvestorEntry(d.ID, 42, map[string]interface{}{"view_document": true})
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDisclosureDuplicateInvestorEntryRejected(t *testing.T) {
	repo := NewDisclosureRepository(newTestDB(t))
	d := seedDisclosure(t, repo, "deal-1", 1)

	err := repo.AddInvestor(&models.DisclosureInvestor{
		DisclosureID: d.ID,
		InvestorID:   1,
		SoftCommit:   domain.SoftCommitRejected,
		Status:       domain.SignatureUnsigned,
	})
	assert.Error(t, err)
}

func TestDisclosureMarkPaid(t *testing.T) {
	repo := NewDisclosureRepository(newTestDB(t))
	d := seedDisclosure(t, repo, "deal-1", 1)

	require.NoError(t, repo.MarkPaid(d.ID, "pi_123"))

	loaded, err := repo.GetByID(d.ID)
	require.NoError(t, err)
	assert.True(t, loaded.IsPaid)
	assert.Equal(t, "pi_123", loaded.PaymentIntentID)
}

func TestDisclosureSoftDeleteHidesRecord(t *testing.T) {
	repo := NewDisclosureRepository(newTestDB(t))
	d := seedDisclosure(t, repo, "deal-1", 1)

	require.NoError(t, repo.SoftDelete(d.ID))

	_, err := repo.GetByID(d.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = repo.FindByDealAndInvestor("deal-1", 1)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
