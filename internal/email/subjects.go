package email

const (
	subjectLeadBroadcastFmt = "Nieuwe lead beschikbaar: %s"
	subjectLeadAssignedFmt  = "Lead aan u toegewezen: %s"
	subjectSLABreachFmt     = "Reactietermijn verlopen: lead %s"
	subjectSLAEscalationFmt = "Geëscaleerde lead aan u toegewezen: %s"
)
