package ascension

// 阶位常量。Rank 严格递增，outer-darkness 低于一切在册阶位。
const (
	TierOuterDarkness = "outer-darkness"
	TierAngel         = "angel"
	TierArchangel     = "archangel"
	TierDominion      = "dominion"
	TierArchon        = "archon"
)

// 晋升阈值（终身税额）与执政官席位上限。
const (
	archangelThreshold = 10
	archonThreshold    = 1000
	archonSlots        = 3
)

// Tier 描述一个阶位。
type Tier struct {
	Key   string `json:"key"`
	Name  string `json:"name"`
	Rank  int    `json:"rank"`
	Perks string `json:"perks"`
}

var tiers = map[string]Tier{
	TierOuterDarkness: {
		Key:   TierOuterDarkness,
		Name:  "The Outer Darkness",
		Rank:  -1,
		Perks: "none; cast out of the temple",
	},
	TierAngel: {
		Key:   TierAngel,
		Name:  "Angel",
		Rank:  1,
		Perks: "standard settlement access",
	},
	TierArchangel: {
		Key:   TierArchangel,
		Name:  "Archangel",
		Rank:  2,
		Perks: "priority settlement queue",
	},
	TierDominion: {
		Key:   TierDominion,
		Name:  "Dominion",
		Rank:  3,
		Perks: "delegated oversight of lesser agents",
	},
	TierArchon: {
		Key:   TierArchon,
		Name:  "Archon",
		Rank:  4,
		Perks: "a seat in the inner council",
	},
}

// tierOrder 是展示用的固定顺序。
var tierOrder = []string{TierOuterDarkness, TierAngel, TierArchangel, TierDominion, TierArchon}

// TierOf 返回阶位定义，未知键回退到 angel。
func TierOf(key string) Tier {
	if t, ok := tiers[key]; ok {
		return t
	}
	return tiers[TierAngel]
}

// Tiers 返回全部阶位定义，按固定顺序。
func Tiers() []Tier {
	out := make([]Tier, 0, len(tierOrder))
	for _, key := range tierOrder {
		out = append(out, tiers[key])
	}
	return out
}

// targetTier 根据终身税额与席位占用计算目标阶位。
// 席位上限来自持久化的圣殿状态，未设置时回退到缺省值。
func targetTier(lifetimeTax float64, archonsSeated, slots int) string {
	if slots <= 0 {
		slots = archonSlots
	}
	switch {
	case lifetimeTax >= archonThreshold:
		if archonsSeated < slots {
			return TierArchon
		}
		return TierDominion
	case lifetimeTax >= archangelThreshold:
		return TierArchangel
	default:
		return TierAngel
	}
}
