package textproc

import "strings"

// 词元化规则作用于小写、去重音后的词形

// minStem 去除后缀后词干的最小长度
const minStem = 3

// suffixRule 后缀替换规则
type suffixRule struct {
	suffix string // 匹配的后缀
	class  string // 动词类别：ar、er、ir；"erir" 表示需要根据词干判断 -er/-ir
}

// verbRules 规则动词变位后缀，按长度从长到短排列
var verbRules = []suffixRule{
	// -ar 动词
	{"andoselo", "ar"}, {"ariamos", "ar"}, {"aramos", "ar"}, {"asemos", "ar"},
	{"aremos", "ar"}, {"abamos", "ar"}, {"asteis", "ar"}, {"ariais", "ar"},
	{"andose", "ar"}, {"andolo", "ar"}, {"andola", "ar"}, {"arian", "ar"},
	{"arais", "ar"}, {"abais", "ar"}, {"areis", "ar"}, {"aseis", "ar"},
	{"arlos", "ar"}, {"arlas", "ar"}, {"arles", "ar"},
	{"aron", "ar"}, {"aban", "ar"}, {"abas", "ar"}, {"ando", "ar"},
	{"arlo", "ar"}, {"arla", "ar"}, {"arse", "ar"}, {"arle", "ar"},
	{"aba", "ar"},

	// -er / -ir 动词（共享词尾）
	{"ieramos", "erir"}, {"iesemos", "erir"}, {"iendose", "erir"},
	{"iriamos", "ir"}, {"eriamos", "er"},
	{"ierais", "erir"}, {"ieseis", "erir"}, {"isteis", "erir"},
	{"ieron", "erir"}, {"ieran", "erir"}, {"ieras", "erir"}, {"iesen", "erir"},
	{"ieses", "erir"}, {"iendo", "erir"}, {"iamos", "erir"},
	{"eremos", "er"}, {"iremos", "ir"}, {"erian", "er"}, {"irian", "ir"},
	{"yendo", "erir"},
	{"iera", "erir"}, {"iese", "erir"}, {"iais", "erir"},
	{"erlo", "er"}, {"erla", "er"}, {"erse", "er"}, {"erle", "er"},
	{"irlo", "ir"}, {"irla", "ir"}, {"irse", "ir"}, {"irle", "ir"},
}

// participleRules 过去分词（形容词用法）统一为阳性单数
var participleRules = []struct {
	suffix, replace string
}{
	{"adas", "ado"}, {"ados", "ado"}, {"ada", "ado"},
	{"idas", "ido"}, {"idos", "ido"}, {"ida", "ido"},
}

// irStems 常见 -ir 动词词干，用于区分 -er/-ir 共享词尾
var irStems = map[string]struct{}{
	"viv": {}, "escrib": {}, "decid": {}, "permit": {}, "recib": {}, "sub": {},
	"abr": {}, "exist": {}, "ocurr": {}, "cumpl": {}, "compart": {}, "part": {},
	"prohib": {}, "difund": {}, "describ": {}, "asist": {}, "insist": {},
	"resist": {}, "consist": {}, "admit": {}, "transmit": {}, "discut": {},
	"constru": {}, "destru": {}, "inclu": {}, "contribu": {}, "distribu": {},
	"atribu": {}, "conclu": {}, "excl": {}, "exig": {}, "dirig": {}, "surg": {},
	"sufr": {}, "un": {}, "reun": {}, "defin": {}, "confund": {}, "invad": {},
	"evad": {}, "persuad": {}, "interrump": {}, "impid": {}, "anad": {},
	"aplaud": {}, "acud": {}, "cubr": {}, "descubr": {}, "abol": {}, "imprim": {},
	"suprim": {}, "reprim": {},
}

// verbLemma 根据动词变位后缀还原不定式
func verbLemma(word string) (string, bool) {
	for _, rule := range verbRules {
		if !strings.HasSuffix(word, rule.suffix) {
			continue
		}
		// 允许两个字符的词干（le-yendo → leer）
		stem := strings.TrimSuffix(word, rule.suffix)
		if len(stem) < minStem-1 {
			continue
		}
		switch rule.class {
		case "ar", "er", "ir":
			return stem + rule.class, true
		default:
			if _, ok := irStems[stem]; ok {
				return stem + "ir", true
			}
			return stem + "er", true
		}
	}
	return "", false
}

// nounLemma 名词/形容词复数还原为单数
func nounLemma(word string) string {
	for _, rule := range participleRules {
		if strings.HasSuffix(word, rule.suffix) && len(word)-len(rule.suffix) >= minStem {
			return strings.TrimSuffix(word, rule.suffix) + rule.replace
		}
	}

	switch {
	case strings.HasSuffix(word, "ces") && len(word) > 4:
		// veces → vez, luces → luz
		return strings.TrimSuffix(word, "ces") + "z"
	case strings.HasSuffix(word, "iones"):
		// elecciones → eleccion
		return strings.TrimSuffix(word, "es")
	case strings.HasSuffix(word, "es") && len(word) > 4 && endsWithConsonantBefore(word, 2):
		// leyes → ley, ciudades → ciudad, mujeres → mujer
		return strings.TrimSuffix(word, "es")
	case strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss") && endsWithVowelBefore(word, 1):
		// noticias → noticia
		return strings.TrimSuffix(word, "s")
	}
	return word
}

// endsWithConsonantBefore 判断去掉n个字节后的末字符是否为辅音（含y）
func endsWithConsonantBefore(word string, n int) bool {
	if len(word) <= n {
		return false
	}
	c := word[len(word)-n-1]
	return c >= 'a' && c <= 'z' && !strings.ContainsRune("aeiou", rune(c))
}

// endsWithVowelBefore 判断去掉n个字节后的末字符是否为元音
func endsWithVowelBefore(word string, n int) bool {
	if len(word) <= n {
		return false
	}
	return strings.ContainsRune("aeiou", rune(word[len(word)-n-1]))
}

// irregularForms 内置不规则词形表
var irregularForms = map[string]string{
	// ir
	"voy": "ir", "vas": "ir", "va": "ir", "vamos": "ir", "van": "ir", "iba": "ir",
	"iban": "ir", "ido": "ir", "yendo": "ir", "vaya": "ir", "vayan": "ir",
	// hacer
	"hago": "hacer", "hace": "hacer", "hacen": "hacer", "hizo": "hacer", "hicieron": "hacer",
	"hecho": "hacer", "hecha": "hacer", "hechos": "hacer", "hechas": "hacer", "hara": "hacer",
	"haran": "hacer", "haria": "hacer", "haga": "hacer", "hagan": "hacer", "haciendo": "hacer",
	// poder
	"puedo": "poder", "puede": "poder", "pueden": "poder", "pudo": "poder", "pudieron": "poder",
	"podra": "poder", "podran": "poder", "podria": "poder", "podrian": "poder", "pueda": "poder",
	"puedan": "poder", "podemos": "poder",
	// decir
	"digo": "decir", "dice": "decir", "dicen": "decir", "dijo": "decir", "dijeron": "decir",
	"dicho": "decir", "dicha": "decir", "dira": "decir", "diria": "decir", "diga": "decir",
	"digan": "decir", "diciendo": "decir",
	// dar
	"doy": "dar", "da": "dar", "dan": "dar", "dio": "dar", "dieron": "dar", "dado": "dar",
	"dara": "dar", "de": "dar",
	// ver
	"veo": "ver", "ve": "ver", "ven": "ver", "vio": "ver", "vieron": "ver", "visto": "ver",
	"vista": "ver", "viendo": "ver",
	// poner
	"pongo": "poner", "pone": "poner", "ponen": "poner", "puso": "poner", "pusieron": "poner",
	"puesto": "poner", "puesta": "poner", "pondra": "poner", "ponga": "poner",
	// querer
	"quiero": "querer", "quiere": "querer", "quieren": "querer", "quiso": "querer",
	"quisieron": "querer", "querra": "querer", "quiera": "querer",
	// saber
	"se": "saber", "sabe": "saber", "saben": "saber", "supo": "saber", "supieron": "saber",
	"sabra": "saber", "sepa": "saber",
	// venir
	"vengo": "venir", "viene": "venir", "vienen": "venir", "vinieron": "venir",
	"vendra": "venir", "venga": "venir", "viniendo": "venir",
	// seguir / pedir / sentir / morir / dormir
	"sigue": "seguir", "siguen": "seguir", "siguio": "seguir", "siguieron": "seguir",
	"siguiendo": "seguir", "pide": "pedir", "piden": "pedir", "pidio": "pedir",
	"pidieron": "pedir", "murio": "morir", "murieron": "morir", "muerto": "morir",
	"muertos": "morir", "duerme": "dormir", "durmio": "dormir",
	// volver / resolver / abrir / escribir / romper / cubrir
	"vuelve": "volver", "vuelven": "volver", "vuelto": "volver", "resuelto": "resolver",
	"abierto": "abrir", "abierta": "abrir", "escrito": "escribir", "escrita": "escribir",
	"roto": "romper", "rota": "romper", "cubierto": "cubrir",
	// 其他常见不规则动词
	"conozco": "conocer", "parece": "parecer", "parecen": "parecer", "piensa": "pensar",
	"piensan": "pensar", "cuenta": "contar", "cuentan": "contar", "encuentra": "encontrar",
	"encuentran": "encontrar", "juega": "jugar", "juegan": "jugar", "muestra": "mostrar",
	"muestran": "mostrar", "empieza": "empezar", "empiezan": "empezar", "pierde": "perder",
	"pierden": "perder", "sale": "salir", "salen": "salir", "traje": "traer", "trajo": "traer",
	"trajeron": "traer", "trae": "traer", "traen": "traer", "produjo": "producir",
	"condujo": "conducir", "redujo": "reducir", "leyo": "leer", "leyeron": "leer",
	"cayo": "caer", "cayeron": "caer", "oyo": "oir", "oyeron": "oir", "huyo": "huir",
	// 名词不规则复数
	"pais": "pais", "paises": "pais", "regimenes": "regimen", "examenes": "examen", "jovenes": "joven",
	"ordenes": "orden", "imagenes": "imagen", "origenes": "origen", "virgenes": "virgen",
	"lunes": "lunes", "martes": "martes", "miercoles": "miercoles", "jueves": "jueves",
	"viernes": "viernes", "crisis": "crisis", "analisis": "analisis", "tesis": "tesis",
	"dosis": "dosis", "virus": "virus", "campus": "campus", "lejos": "lejos",
	"mas": "mas", "menos": "menos", "pues": "pues", "despues": "despues",
	"mientras": "mientras", "ademas": "ademas", "atras": "atras", "apenas": "apenas",
	"quizas": "quizas", "ambos": "ambos", "ambas": "ambos",
}
