package triage

import "github.com/medtriage/triage/internal/platform/textclass"

// referenceCorpus is the fixed training set the reference artifact is built
// from: one symptom phrase per disease.
var referenceCorpus = []struct {
	text    string
	disease string
	profile DiseaseProfile
}{
	{"fiebre dolor cabeza cuerpo", "Gripe/Influenza", DiseaseProfile{
		Severity: SeverityModerate, ExamNeeded: true,
		Medications: []string{"Ibuprofeno 400mg cada 6 horas", "Paracetamol 500mg cada 8 horas", "Oseltamivir 75mg cada 12 horas"},
	}},
	{"tos seca fiebre respiracion", "Bronquitis", DiseaseProfile{
		Severity: SeverityModerate, ExamNeeded: true,
		Medications: []string{"Bromexina 8mg cada 8 horas", "Amoxicilina 500mg cada 8 horas", "Guaifenesina expectorante"},
	}},
	{"dolor pecho respiracion dificultad", "Neumonía", DiseaseProfile{
		Severity: SeverityHigh, ExamNeeded: true,
		Medications: []string{"Azitromicina 500mg día 1, luego 250mg", "Ceftriaxona 1g cada 12 horas", "Paracetamol para la fiebre"},
	}},
	{"dolor garganta fiebre inflamacion", "Faringitis", DiseaseProfile{
		Severity: SeverityMild, ExamNeeded: false,
		Medications: []string{"Ibuprofeno 400mg cada 6 horas", "Amoxicilina 500mg cada 8 horas", "Pastillas para la garganta"},
	}},
	{"nausea vomito diarrea dolor abdomen", "Gastroenteritis", DiseaseProfile{
		Severity: SeverityModerate, ExamNeeded: true,
		Medications: []string{"Metoclopramida 10mg cada 8 horas", "Loperamida si hay diarrea", "Rehidratación oral"},
	}},
	{"mareo vertigo vision borrosa", "Mareos/Vértigo", DiseaseProfile{
		Severity: SeverityMild, ExamNeeded: true,
		Medications: []string{"Meclozina 25mg cada 8 horas", "Dimenhidrinato 50mg cada 6 horas", "Ejercicios de equilibrio"},
	}},
	{"presion alta dolor cabeza palpitaciones", "Hipertensión", DiseaseProfile{
		Severity: SeverityHigh, ExamNeeded: false,
		Medications: []string{"Losartán 50mg diarios", "Metoprolol 100mg diarios", "Control de dieta baja en sodio"},
	}},
	{"presion baja mareo fatiga debilidad", "Hipotensión", DiseaseProfile{
		Severity: SeverityMild, ExamNeeded: false,
		Medications: []string{"Aumentar ingesta de líquidos y sal", "Midodrina 5mg cada 8 horas", "Ejercicio regular"},
	}},
	{"erupcion piel picazon inflamacion", "Dermatitis/Alergia", DiseaseProfile{
		Severity: SeverityMild, ExamNeeded: false,
		Medications: []string{"Hidrocortisona crema 1% cada 12 horas", "Cetirizina 10mg diarios", "Loción humectante"},
	}},
	{"dolor articulaciones inflamacion rigidez", "Artritis", DiseaseProfile{
		Severity: SeverityModerate, ExamNeeded: false,
		Medications: []string{"Ibuprofeno 400mg cada 6 horas", "Metotrexato bajo supervisión", "Fisioterapia"},
	}},
	{"fiebre escalofrios debilidad dolor", "Infección Viral", DiseaseProfile{
		Severity: SeverityModerate, ExamNeeded: true,
		Medications: []string{"Paracetamol 500mg cada 8 horas", "Ibuprofen 400mg cada 6 horas", "Descanso y líquidos"},
	}},
	{"congestion nasal estornudos goteo nasal", "Resfriado Común", DiseaseProfile{
		Severity: SeverityMild, ExamNeeded: false,
		Medications: []string{"Vitamina C 500mg diarios", "Paracetamol para síntomas", "Descanso"},
	}},
	{"dificultad respirar sibilancias opresion pecho", "Asma", DiseaseProfile{
		Severity: SeverityHigh, ExamNeeded: true,
		Medications: []string{"Salbutamol inhalador PRN", "Fluticasona inhalador diario", "Montelukast 10mg nocturnos"},
	}},
	{"dolor oido audiencia reducida inflamacion", "Otitis", DiseaseProfile{
		Severity: SeverityMild, ExamNeeded: false,
		Medications: []string{"Amoxicilina 500mg cada 8 horas", "Gotas óticas con anestésico", "Ibuprofeno para el dolor"},
	}},
	{"cambios vision dolor ojo enrojecimiento", "Conjuntivitis", DiseaseProfile{
		Severity: SeverityMild, ExamNeeded: false,
		Medications: []string{"Gotas oftalmológicas antibióticas", "Compresas frías", "Higiene ocular"},
	}},
}

// ReferenceExamples returns the training examples of the reference corpus.
func ReferenceExamples() []textclass.Example {
	out := make([]textclass.Example, len(referenceCorpus))
	for i, row := range referenceCorpus {
		out[i] = textclass.Example{Text: row.text, Label: row.disease}
	}
	return out
}

// ReferenceKnowledgeBase returns the profiles of every reference disease.
func ReferenceKnowledgeBase() *KnowledgeBase {
	profiles := make(map[string]DiseaseProfile, len(referenceCorpus))
	for _, row := range referenceCorpus {
		p := row.profile
		p.Medications = append([]string(nil), p.Medications...)
		profiles[row.disease] = p
	}
	return NewKnowledgeBase(profiles)
}

// BuildReferenceArtifact trains the classifier on the reference corpus and
// pairs it with the reference knowledge base.
func BuildReferenceArtifact() (*Artifact, error) {
	clf, err := textclass.Train(ReferenceExamples(), textclass.DefaultTrainOptions)
	if err != nil {
		return nil, err
	}
	return NewArtifact(clf, ReferenceKnowledgeBase())
}
