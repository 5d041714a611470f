package cache

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// nilMarker 缺省参数的显式占位符
// 不能直接省略缺省参数,否则不同的过滤组合可能拼出相同的键
const nilMarker = "nil"

// Param 缓存键参数,带参数名标签
type Param struct {
	Name  string
	Value interface{}
}

// BuildKey 从命名空间和有序参数列表派生缓存键
// 相同输入永远得到相同的键;每个参数都带名字标签并以 | 分隔,
// 缺省值写成显式的 nil 标记,避免不同参数组合意外碰撞
func BuildKey(namespace string, params ...Param) string {
	var b strings.Builder
	b.WriteString(namespace)
	for _, p := range params {
		b.WriteByte('|')
		b.WriteString(p.Name)
		b.WriteByte('=')
		b.WriteString(formatValue(p.Value))
	}
	return b.String()
}

// formatValue 格式化参数值,nil 指针统一输出占位符
func formatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return nilMarker
	case *string:
		if val == nil {
			return nilMarker
		}
		return *val
	case string:
		return val
	case *time.Time:
		if val == nil {
			return nilMarker
		}
		return val.UTC().Format(time.RFC3339Nano)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case *int:
		if val == nil {
			return nilMarker
		}
		return strconv.Itoa(*val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}
