package events

// Topic constants for domain events emitted by the back-office.
const (
	TopicGoodsCreated      = "goods.created"
	TopicGoodsUpdated      = "goods.updated"
	TopicTariffUpdated     = "tariff.updated"
	TopicTariffDeleted     = "tariff.deleted"
	TopicBenefitChanged    = "benefit.changed"
	TopicNomenclatureSaved = "branch.nomenclature_saved"
)

// TariffTopics are the topics that invalidate cached tariff tables.
func TariffTopics() []string {
	return []string{TopicTariffUpdated, TopicTariffDeleted}
}
