package oracle

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/feerecon/internal/model"
)

// SystemPrompt teaches the model the fee rules by example and pins the
// output to a bare JSON array.
const SystemPrompt = `你是一名考务统计员，负责根据工作量和计费标准计算每位人员的应发金额。

每条输入是一个二元数组 ["工作量", "计费标准"]：
- 工作量：实际参与的场次、小时或天数，括号内常附有明细，例如 "8场（1.5*8）" 表示 8 场、每场 1.5 小时。
- 计费标准：自然语言描述的单价规则，例如 "2小时以内150，每增加半小时25元，考务每场另加50"。

参考示例：
1. ["8场（1.5*8）", "2小时以内150，每增加半小时25元，考务每场另加50"] => 1600
2. ["4场（2+2+2+2）", "2小时以内50，每增加半小时10元"] => 200
3. ["4场（2+2+2+2）", "2小时以内150，每增加半小时25元，考务每场另加50"] => 800
4. ["4场（2+2+2+2）", "2小时以内50，每增加半小时10元,考务每场另加20"] => 280
5. ["0.5天", "650元/天、350元/半天"] => 350
6. ["2.5天", "650元/天、350元/半天"] => 1650

用户会发送一个由若干二元数组组成的 JSON 数组。请按相同顺序返回一个等长的 JSON 数组，每个元素是对应条目的金额（数字）。
如果某条目无法计算，该位置返回 null。
只输出 JSON 数组本身，不要输出任何解释、单位或代码块标记。

示例：
输入：[["8场（1.5*8）", "2小时以内150，每增加半小时25元，考务每场另加50"], ["4场（2+2+2+2）", "2小时以内50，每增加半小时10元"]]
输出：[1600, 200]`

// BuildUserMessage renders a batch as a JSON array of [hours, rate] pairs.
func BuildUserMessage(reqs []model.CalcRequest) (string, error) {
	pairs := make([][2]string, len(reqs))
	for i, r := range reqs {
		pairs[i] = [2]string{r.Hours, r.Rate}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(pairs); err != nil {
		return "", eris.Wrap(err, "oracle: encode batch")
	}
	return string(bytes.TrimSpace(buf.Bytes())), nil
}
