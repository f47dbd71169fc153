package textproc

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/language"
)

// spanishStopwords 西班牙语停用词表（标准313词表）
var spanishStopwords = `de la que el en y a los del se las por un para con no una su al lo como
más pero sus le ya o este sí porque esta entre cuando muy sin sobre también me hasta hay donde
quien desde todo nos durante todos uno les ni contra otros ese eso ante ellos e esto mí antes
algunos qué unos yo otro otras otra él tanto esa estos mucho quienes nada muchos cual poco ella
estar estas algunas algo nosotros mi mis tú te ti tu tus ellas nosotras vosotros vosotras os mío
mía míos mías tuyo tuya tuyos tuyas suyo suya suyos suyas nuestro nuestra nuestros nuestras
vuestro vuestra vuestros vuestras esos esas estoy estás está estamos estáis están esté estés
estemos estéis estén estaré estarás estará estaremos estaréis estarán estaría estarías
estaríamos estaríais estarían estaba estabas estábamos estabais estaban estuve estuviste estuvo
estuvimos estuvisteis estuvieron estuviera estuvieras estuviéramos estuvierais estuvieran
estuviese estuvieses estuviésemos estuvieseis estuviesen estando estado estada estados estadas
estad he has ha hemos habéis han haya hayas hayamos hayáis hayan habré habrás habrá habremos
habréis habrán habría habrías habríamos habríais habrían había habías habíamos habíais habían
hube hubiste hubo hubimos hubisteis hubieron hubiera hubieras hubiéramos hubierais hubieran
hubiese hubieses hubiésemos hubieseis hubiesen habiendo habido habida habidos habidas soy eres
es somos sois son sea seas seamos seáis sean seré serás será seremos seréis serán sería serías
seríamos seríais serían era eras éramos erais eran fui fuiste fue fuimos fuisteis fueron fuera
fueras fuéramos fuerais fueran fuese fueses fuésemos fueseis fuesen sintiendo sentido sentida
sentidos sentidas siente sentid tengo tienes tiene tenemos tenéis tienen tenga tengas tengamos
tengáis tengan tendré tendrás tendrá tendremos tendréis tendrán tendría tendrías tendríamos
tendríais tendrían tenía tenías teníamos teníais tenían tuve tuviste tuvo tuvimos tuvisteis
tuvieron tuviera tuvieras tuviéramos tuvierais tuvieran tuviese tuvieses tuviésemos tuvieseis
tuviesen teniendo tenido tenida tenidos tenidas tened`

// Stopwords 停用词集合
// 键为去重音后的形式，重音变体（más/mas、sí/si）按同一个词处理
type Stopwords map[string]struct{}

// Contains 判断词是否为停用词
func (s Stopwords) Contains(word string) bool {
	_, ok := s[foldStopword(word)]
	return ok
}

// languageAliases 常用语言名称到BCP 47标签
var languageAliases = map[string]string{
	"spanish": "es",
	"español": "es",
	"espanol": "es",
}

// ParseLanguage 解析语言配置，接受BCP 47标签（es、es-MX）与常用语言名称
func ParseLanguage(name string) (language.Tag, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := languageAliases[key]; ok {
		key = alias
	}
	tag, err := language.Parse(key)
	if err != nil {
		return language.Und, fmt.Errorf("unsupported language: %s", name)
	}
	return tag, nil
}

// StopwordsFor 返回指定语言的停用词集合
func StopwordsFor(name string) (Stopwords, error) {
	tag, err := ParseLanguage(name)
	if err != nil {
		return nil, err
	}

	base, _ := tag.Base()
	switch base.String() {
	case "es":
		words := strings.Fields(spanishStopwords)
		set := make(Stopwords, len(words))
		for _, w := range words {
			set[foldStopword(w)] = struct{}{}
		}
		return set, nil
	default:
		return nil, fmt.Errorf("unsupported language: %s", name)
	}
}

// foldStopword 去除重音，纯ASCII的词原样返回
func foldStopword(word string) string {
	for i := 0; i < len(word); i++ {
		if word[i] >= utf8.RuneSelf {
			return StripAccents(word)
		}
	}
	return word
}
