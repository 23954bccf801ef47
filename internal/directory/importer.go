package directory

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/feerecon/internal/model"
)

// profileAliases maps the header spellings found in roster sheets to the
// profile attribute they fill.
var profileAliases = map[string]string{
	model.FieldName:       "name",
	"收款账号身份证号":            "id_card",
	"收款账号身份证号码":           "id_card",
	"身份证":                 "id_card",
	model.FieldIDCard:     "id_card",
	"收款账号":                "bank_card",
	model.FieldBankCard:   "bank_card",
	"收款账号开户行":             "bank_name",
	model.FieldBankName:   "bank_name",
	"电话号码":                "phone",
	"手机号码":                "phone",
	model.FieldPhone:      "phone",
	model.FieldSalaryID:   "salary_id",
	"工资编码":                "salary_id",
	model.FieldDepartment: "department",
	model.FieldRemark:     "remark",
}

// ProfilesFromRecords converts roster sheet records into profiles. Records
// without a name are skipped. Every profile gets the given category.
func ProfilesFromRecords(records []*model.Record, category string) []model.Profile {
	out := make([]model.Profile, 0, len(records))
	skipped := 0
	for _, rec := range records {
		var p model.Profile
		for _, key := range rec.Keys() {
			attr, ok := profileAliases[strings.TrimSpace(key)]
			if !ok {
				continue
			}
			setAttr(&p, attr, strings.TrimSpace(rec.Text(key)))
		}
		p.Name = model.NormalizeName(p.Name)
		if p.Name == "" {
			skipped++
			continue
		}
		p.Category = category
		out = append(out, p)
	}
	if skipped > 0 {
		zap.L().Warn("directory: skipped roster rows without a name", zap.Int("count", skipped))
	}
	return out
}

func setAttr(p *model.Profile, attr, v string) {
	// First non-empty alias wins.
	var dst *string
	switch attr {
	case "name":
		dst = &p.Name
	case "id_card":
		dst = &p.IDCard
	case "bank_card":
		dst = &p.BankCard
	case "bank_name":
		dst = &p.BankName
	case "phone":
		dst = &p.Phone
	case "salary_id":
		dst = &p.SalaryID
	case "department":
		dst = &p.Department
	case "remark":
		dst = &p.Remark
	default:
		return
	}
	if *dst == "" {
		*dst = v
	}
}

type profileSeed struct {
	Profiles []model.Profile `yaml:"profiles"`
}

// LoadProfilesYAML reads a profile seed file of the form
//
//	profiles:
//	  - name: 张三
//	    id_card: "110..."
func LoadProfilesYAML(path string) ([]model.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "directory: read %s", path)
	}
	return ParseProfilesYAML(data)
}

// ParseProfilesYAML decodes a profile seed document.
func ParseProfilesYAML(data []byte) ([]model.Profile, error) {
	var seed profileSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, eris.Wrap(err, "directory: parse profile yaml")
	}
	for i := range seed.Profiles {
		seed.Profiles[i].Name = model.NormalizeName(seed.Profiles[i].Name)
	}
	return seed.Profiles, nil
}
