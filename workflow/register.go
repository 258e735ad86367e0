package workflow

// NewDefaultRegistry builds the Registry with every workflow
// implementation this package ships, bound under its task-type key.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(HarvestWorkflowType, Harvest)
	r.Register(ConvergentSearchWorkflowType, ConvergentSearch)
	r.Register(AdversarialVerifyWorkflowType, AdversarialVerify)
	r.Register(ResearchDeepWorkflowType, ResearchDeep)
	r.Register(VerifiedCollectionWorkflowType, VerifiedCollection)
	r.Register(QDWinnowWorkflowType, QDWinnow)
	r.Register(SemanticCronWorkflowType, SemanticCron)
	return r
}
