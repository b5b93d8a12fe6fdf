package repository

import (
	"dealdesk/internal/domain"
	"dealdesk/internal/models"

	"gorm.io/gorm"
)

type DisclosureRepository struct {
	db *gorm.DB
}

func NewDisclosureRepository(db *gorm.DB) *DisclosureRepository {
	return &DisclosureRepository{db: db}
}

func (r *DisclosureRepository) Create(d *models.DealDisclosure) error {
	return r.db.Create(d).Error
}

func (r *DisclosureRepository) GetByID(id uint) (*models.DealDisclosure, error) {
	var d models.DealDisclosure
	err := r.db.Preload("Investors").First(&d, id).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// FindByDealAndInvestor returns the disclosure for a deal that carries a
// signed entry for the given investor. Payment initiation is gated on this:
// an investor who has not signed the packet cannot move money into the deal.
func (r *DisclosureRepository) FindByDealAndInvestor(dealID string, investorID uint) (*models.DealDisclosure, error) {
	var d models.DealDisclosure
	err := r.db.
		Joins("JOIN disclosure_investors di ON di.disclosure_id = deal_disclosures.id").
		Where("deal_disclosures.deal_id = ? AND di.investor_id = ? AND di.status = ?",
			dealID, investorID, domain.SignatureSigned).
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DisclosureRepository) ListByDeal(dealID string) ([]models.DealDisclosure, error) {
	var ds []models.DealDisclosure
	err := r.db.Preload("Investors").Where("deal_id = ?", dealID).Find(&ds).Error
	return ds, err
}

func (r *DisclosureRepository) AddInvestor(entry *models.DisclosureInvestor) error {
	return r.db.Create(entry).Error
}

// UpdateInvestorEntry updates one investor's row on a disclosure without
// touching the other entries.
func (r *DisclosureRepository) UpdateInvestorEntry(disclosureID, investorID uint, updates map[string]interface{}) error {
	res := r.db.Model(&models.DisclosureInvestor{}).
		Where("disclosure_id = ? AND investor_id = ?", disclosureID, investorID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkPaid records a settled payment intent on the disclosure packet.
func (r *DisclosureRepository) MarkPaid(disclosureID uint, paymentIntentID string) error {
	return r.db.Model(&models.DealDisclosure{}).
		Where("id = ?", disclosureID).
		Updates(map[string]interface{}{"is_paid": true, "payment_intent_id": paymentIntentID}).Error
}

func (r *DisclosureRepository) SoftDelete(id uint) error {
	return r.db.Delete(&models.DealDisclosure{}, id).Error
}
