package model

// Field names of the fee-disbursement sheet.
const (
	FieldSerial       = "编号"
	FieldName         = "姓名"
	FieldPhone        = "电话"
	FieldIDCard       = "身份证号"
	FieldBankCard     = "银行卡号"
	FieldBankName     = "开户行"
	FieldRemark       = "备注"
	FieldDetail       = "发放明细"
	FieldHours        = "次数（小时）"
	FieldRate         = "标准"
	FieldOtherProject = "其他项目"
	FieldSalaryID     = "工资编号"
	FieldDepartment   = "分院"
	FieldAmount       = "金额"
)

// KnownColumns is the output column vocabulary. Output keeps the subset of
// these that is present, ordered by first appearance in the records.
var KnownColumns = []string{
	FieldSerial,
	FieldName,
	FieldPhone,
	"收款账号身份证号",
	"收款账号",
	FieldBankName,
	"收款账号开户行",
	"电话号码",
	FieldRemark,
	FieldIDCard,
	FieldBankCard,
	FieldDetail,
	FieldHours,
	FieldRate,
	FieldOtherProject,
	FieldSalaryID,
	FieldDepartment,
	FieldAmount,
}

// ProfileFields are the record fields overwritten from a directory profile.
var ProfileFields = []string{FieldIDCard, FieldBankCard, FieldPhone, FieldBankName}
